package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultLocale = "en_US"

//go:embed lang/*.yaml
var bundledLocales embed.FS

// Locale holds the operator-facing messages of one language.
type Locale struct {
	translations map[string]string
	locale       string
}

var globalLocale *Locale

// InitLocale picks the operator's language from the environment, falling
// back to English when no bundle exists for it.
func InitLocale() error {
	l, err := LoadLocale(DetectSystemLocale())
	if err != nil {
		if l, err = LoadLocale(defaultLocale); err != nil {
			return fmt.Errorf("failed to load fallback locale %s: %w", defaultLocale, err)
		}
	}
	globalLocale = l
	return nil
}

// DetectSystemLocale returns the first usable locale name from LANG, LC_ALL
// and LC_MESSAGES, in that order.
func DetectSystemLocale() string {
	for _, key := range []string{"LANG", "LC_ALL", "LC_MESSAGES"} {
		if name := localeName(os.Getenv(key)); name != "" {
			return name
		}
	}
	return defaultLocale
}

// localeName strips the codeset and modifier from a POSIX locale such as
// "sv_SE.UTF-8@euro". The C and POSIX locales carry no language.
func localeName(v string) string {
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "C" || v == "POSIX" {
		return ""
	}
	return v
}

// LoadLocale parses lang/<locale>.yaml. A copy next to the executable wins
// over the bundled one so translations can be fixed in place.
func LoadLocale(locale string) (*Locale, error) {
	data, err := readLocale(locale)
	if err != nil {
		return nil, fmt.Errorf("unknown locale %s: %w", locale, err)
	}

	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse locale %s: %w", locale, err)
	}
	return &Locale{translations: translations, locale: locale}, nil
}

func readLocale(locale string) ([]byte, error) {
	file := filepath.Join("lang", locale+".yaml")
	if exe, err := os.Executable(); err == nil {
		if data, err := os.ReadFile(filepath.Join(filepath.Dir(exe), file)); err == nil {
			return data, nil
		}
	}
	return bundledLocales.ReadFile("lang/" + locale + ".yaml")
}

// translate formats the message for key, or returns the key itself when the
// locale is missing or has no such message.
func (l *Locale) translate(key string, params ...interface{}) string {
	if l == nil {
		return key
	}
	msg, ok := l.translations[key]
	if !ok {
		return key
	}
	if len(params) > 0 {
		return fmt.Sprintf(msg, params...)
	}
	return msg
}

// T translates key in the active locale.
// Usage: T("poll_round", 3) => "Watching for the buy button (round 3)..."
func T(key string, params ...interface{}) string {
	return globalLocale.translate(key, params...)
}

// GetLocale returns the active locale code, e.g. "sv_SE".
func GetLocale() string {
	if globalLocale == nil {
		return defaultLocale
	}
	return globalLocale.locale
}
