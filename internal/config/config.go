package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Exchanges map[string]ExchangeConfig
	Trade     TradeConfig
	Database  DatabaseConfig
	Notify    NotifyConfig
	Runtime   RuntimeConfig
}

type ExchangeConfig struct {
	BaseUrl    string
	WSUrl      string
	ApiKey     string
	Secret     string
	Passphrase string
}

// TradeConfig carries every knob of the settlement cycle. The stop-loss
// threshold and the monitoring ceiling are deliberately configuration, not
// constants: observed deployments run them with different values.
type TradeConfig struct {
	Symbol            string
	Threshold         float64
	Direction         string
	Notional          float64
	Leverage          int
	FeeBuffer         float64
	StopLossThreshold float64
	PrecheckLead      time.Duration
	ActionLead        time.Duration
	PollInterval      time.Duration
	MaxMonitor        time.Duration
	CallTimeout       time.Duration
	GraceWindow       time.Duration
}

type DatabaseConfig struct {
	DSN string
}

type NotifyConfig struct {
	WeComWebhook  string
	TelegramToken string
	TelegramChat  string
	Mentions      []string
}

type RuntimeConfig struct {
	DryRun bool
	Log    LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func Load() (*Config, error) {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	viper.ReadInConfig()

	setDefaults()

	cfg := &Config{}

	cfg.Exchanges = map[string]ExchangeConfig{}
	for _, name := range []string{"binance", "bybit", "gateio", "bitget"} {
		cfg.Exchanges[name] = ExchangeConfig{
			BaseUrl:    viper.GetString("exchanges." + name + ".base_url"),
			WSUrl:      viper.GetString("exchanges." + name + ".ws_url"),
			ApiKey:     envSub("exchanges." + name + ".api_key"),
			Secret:     envSub("exchanges." + name + ".secret"),
			Passphrase: envSub("exchanges." + name + ".passphrase"),
		}
	}

	cfg.Trade = TradeConfig{
		Symbol:            viper.GetString("trade.symbol"),
		Threshold:         viper.GetFloat64("trade.threshold"),
		Direction:         viper.GetString("trade.direction"),
		Notional:          viper.GetFloat64("trade.notional"),
		Leverage:          viper.GetInt("trade.leverage"),
		FeeBuffer:         viper.GetFloat64("trade.fee_buffer"),
		StopLossThreshold: viper.GetFloat64("trade.stop_loss_threshold"),
		PrecheckLead:      viper.GetDuration("trade.precheck_lead"),
		ActionLead:        viper.GetDuration("trade.action_lead"),
		PollInterval:      viper.GetDuration("trade.poll_interval"),
		MaxMonitor:        viper.GetDuration("trade.max_monitor"),
		CallTimeout:       viper.GetDuration("trade.call_timeout"),
		GraceWindow:       viper.GetDuration("trade.grace_window"),
	}

	cfg.Database = DatabaseConfig{
		DSN: envSub("database.dsn"),
	}

	cfg.Notify = NotifyConfig{
		WeComWebhook:  envSub("notify.wecom_webhook"),
		TelegramToken: envSub("notify.telegram_token"),
		TelegramChat:  envSub("notify.telegram_chat"),
		Mentions:      viper.GetStringSlice("notify.mentions"),
	}

	cfg.Runtime = RuntimeConfig{
		DryRun: viper.GetBool("runtime.dry_run"),
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	if err := cfg.Trade.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("trade.threshold", -0.005)
	viper.SetDefault("trade.direction", "negative")
	viper.SetDefault("trade.notional", 100.0)
	viper.SetDefault("trade.leverage", 10)
	viper.SetDefault("trade.fee_buffer", 0.005)
	viper.SetDefault("trade.stop_loss_threshold", 0.001)
	viper.SetDefault("trade.precheck_lead", 15*time.Second)
	viper.SetDefault("trade.action_lead", 5*time.Second)
	viper.SetDefault("trade.poll_interval", 200*time.Millisecond)
	viper.SetDefault("trade.max_monitor", 10*time.Minute)
	viper.SetDefault("trade.call_timeout", 10*time.Second)
	viper.SetDefault("trade.grace_window", 30*time.Second)
	viper.SetDefault("runtime.log.level", "info")
}

func (t TradeConfig) Validate() error {
	switch strings.ToLower(t.Direction) {
	case "negative":
		if t.Threshold >= 0 {
			return fmt.Errorf("direction=negative requires a negative threshold, got %f", t.Threshold)
		}
	case "positive":
		if t.Threshold <= 0 {
			return fmt.Errorf("direction=positive requires a positive threshold, got %f", t.Threshold)
		}
	default:
		return fmt.Errorf("unknown funding direction: %s", t.Direction)
	}
	if t.Notional <= 0 {
		return fmt.Errorf("trade notional must be positive, got %f", t.Notional)
	}
	if t.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got %d", t.Leverage)
	}
	if t.PollInterval <= 0 || t.MaxMonitor <= 0 {
		return fmt.Errorf("poll interval and monitor ceiling must be positive")
	}
	if t.ActionLead > t.PrecheckLead {
		return fmt.Errorf("action lead %s must not exceed precheck lead %s", t.ActionLead, t.PrecheckLead)
	}
	return nil
}

func envSub(key string) string {
	return substituteEnv(viper.GetString(key))
}

func substituteEnv(val string) string {
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
