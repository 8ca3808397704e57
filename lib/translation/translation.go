package translation

import (
	"github.com/leonelquinteros/gotext"
)

// Configure loads <path>/<lang>/LC_MESSAGES/default.po. Message ids are
// the English texts, so a missing catalog falls back to English.
func Configure(path, lang string) {
	gotext.Configure(path, lang, "default")
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
