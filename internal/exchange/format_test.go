package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatWithStep(t *testing.T) {
	assert.Equal(t, "98.7", FormatWithStep(98.70, 0.1))
	assert.Equal(t, "98.73", FormatWithStep(98.7345, 0.01))
	assert.Equal(t, "0.004", FormatWithStep(0.004, 0.001))
	assert.Equal(t, "27345", FormatWithStep(27345.9, 1))
	assert.Equal(t, "27300", FormatWithStep(27345.9, 100))
}

func TestFormatWithStepNoStep(t *testing.T) {
	assert.Equal(t, "98.7345", FormatWithStep(98.7345, 0))
}

func TestFormatWithStepRepresentationError(t *testing.T) {
	// 100 * (1 - 0.008 - 0.005) lands a hair under 98.70 in float64;
	// the epsilon keeps it from flooring a full tick down
	v := 100 * (1 - 0.008 - 0.005)
	assert.Equal(t, "98.7", FormatWithStep(v, 0.1))
}
