// Package i18n holds the few user-facing strings the agent produces itself.
// Everything else shown to the user comes from polkit or the helper.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text is the key.
const (
	AuthFailed     = "Authentication failed. Please try again."
	AuthSucceeded  = "Authentication succeeded."
	AuthCancelled  = "Authentication cancelled."
	TooManyRetries = "Too many failed attempts."
	HelperFailed   = "The authentication helper stopped unexpectedly."
)

var (
	cat = catalog.NewBuilder(catalog.Fallback(language.English))

	// English first: the matcher falls back to the first entry.
	supported = []language.Tag{
		language.English,
		language.German,
		language.French,
		language.SimplifiedChinese,
	}
	matcher = language.NewMatcher(supported)
)

func init() {
	set := func(tag language.Tag, pairs ...string) {
		for i := 0; i+1 < len(pairs); i += 2 {
			_ = cat.SetString(tag, pairs[i], pairs[i+1])
		}
	}
	set(language.English,
		AuthFailed, AuthFailed,
		AuthSucceeded, AuthSucceeded,
		AuthCancelled, AuthCancelled,
		TooManyRetries, TooManyRetries,
		HelperFailed, HelperFailed,
	)
	set(language.German,
		AuthFailed, "Authentifizierung fehlgeschlagen. Bitte erneut versuchen.",
		AuthSucceeded, "Authentifizierung erfolgreich.",
		AuthCancelled, "Authentifizierung abgebrochen.",
		TooManyRetries, "Zu viele fehlgeschlagene Versuche.",
		HelperFailed, "Das Authentifizierungsprogramm wurde unerwartet beendet.",
	)
	set(language.French,
		AuthFailed, "Échec de l'authentification. Veuillez réessayer.",
		AuthSucceeded, "Authentification réussie.",
		AuthCancelled, "Authentification annulée.",
		TooManyRetries, "Trop de tentatives échouées.",
		HelperFailed, "Le programme d'authentification s'est arrêté de façon inattendue.",
	)
	set(language.SimplifiedChinese,
		AuthFailed, "认证失败，请重试。",
		AuthSucceeded, "认证成功。",
		AuthCancelled, "认证已取消。",
		TooManyRetries, "失败次数过多。",
		HelperFailed, "认证程序意外退出。",
	)
}

// Translator renders message keys for one locale.
type Translator struct {
	p   *message.Printer
	tag language.Tag
}

// New accepts POSIX locale names ("de_DE.UTF-8", "C", "") and BCP 47 tags.
func New(locale string) *Translator {
	tag := Parse(locale)
	_, idx, _ := matcher.Match(tag)
	matched := supported[idx]
	return &Translator{
		p:   message.NewPrinter(matched, message.Catalog(cat)),
		tag: matched,
	}
}

func (t *Translator) T(key string) string {
	return t.p.Sprintf(key)
}

func (t *Translator) Tag() language.Tag {
	return t.tag
}

// Parse converts a POSIX locale name into a language tag. Unknown or
// "C"/"POSIX" locales map to English.
func Parse(locale string) language.Tag {
	s := locale
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" || s == "C" || s == "POSIX" {
		return language.English
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.English
	}
	return tag
}
