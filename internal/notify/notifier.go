// Package notify delivers best-effort outcome messages. Delivery runs on its
// own goroutine with its own timeout; a failed or slow webhook can never hold
// up or fail a trade state transition.
package notify

import (
	"context"
	"time"

	"fundingarb/internal/logger"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type Notifier struct {
	senders []Sender
	log     *logger.Logger
	timeout time.Duration
}

func New(log *logger.Logger, senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		log:     log,
		timeout: 10 * time.Second,
	}
}

// Notify dispatches to every sender and returns immediately. Errors are
// logged, never returned.
func (n *Notifier) Notify(title, message string) {
	if n == nil || len(n.senders) == 0 {
		return
	}
	for _, s := range n.senders {
		go func(s Sender) {
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()
			if err := s.Send(ctx, title, message); err != nil {
				n.log.WithComponent("notify").WithError(err).
					WithFields(map[string]interface{}{"sender": s.Name(), "title": title}).
					Warn("notification delivery failed")
			}
		}(s)
	}
}
