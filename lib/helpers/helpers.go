package helpers

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatPriceUS renders a USD amount with two decimals and comma thousands separators.
func FormatPriceUS(price float64, escapeMarkdown bool) string {
	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.2f", price)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// FormatSince renders a unix timestamp relative to now, e.g. "3 minutes ago".
func FormatSince(unix int64) string {
	if unix <= 0 {
		return "-"
	}
	return humanize.Time(time.Unix(unix, 0))
}

func Capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
