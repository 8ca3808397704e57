package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `1\.5 \(min\)`, EscapeMarkdownV2("1.5 (min)"))
	assert.Equal(t, `a\\b`, EscapeMarkdownV2(`a\b`))
	assert.Equal(t, "plain", EscapeMarkdownV2("plain"))
}

func TestFormatPriceUS(t *testing.T) {
	assert.Equal(t, "49,999.99", FormatPriceUS(49999.99, false))
	assert.Equal(t, "3,000.00", FormatPriceUS(3000, false))
	assert.Equal(t, "0.50", FormatPriceUS(0.5, false))
	assert.Equal(t, `3,000\.00`, FormatPriceUS(3000, true))
}

func TestFormatSince(t *testing.T) {
	assert.Equal(t, "-", FormatSince(0))
	assert.Contains(t, FormatSince(time.Now().Add(-3*time.Minute).Unix()), "minutes ago")
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Bitcoin", Capitalize("bitcoin"))
	assert.Equal(t, "", Capitalize(""))
}
