package middleware

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// I18nConfig configures the localization middleware.
type I18nConfig struct {
	DefaultLanguage string
	LocalesDir      string
}

// Translator resolves message keys against the loaded locale files.
type Translator struct {
	bundle       *i18n.Bundle
	languages    []string
	translations map[string]map[string]string
}

// NewTranslator loads every <lang>.json file from the locales directory.
func NewTranslator(config I18nConfig) (*Translator, error) {
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}

	bundle := i18n.NewBundle(language.MustParse(config.DefaultLanguage))
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	t := &Translator{
		bundle:       bundle,
		translations: make(map[string]map[string]string),
	}

	entries, err := os.ReadDir(config.LocalesDir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		langCode := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		path := filepath.Join(config.LocalesDir, entry.Name())
		if _, err := bundle.LoadMessageFile(path); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var nested map[string]interface{}
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil, err
		}
		t.translations[langCode] = flatten(nested, "")
		t.languages = append(t.languages, langCode)
	}
	return t, nil
}

// Translate resolves key in lang, falling back to the key itself.
func (t *Translator) Translate(lang, key string) string {
	if messages, ok := t.translations[lang]; ok {
		if value, ok := messages[key]; ok {
			return value
		}
	}
	return key
}

func (t *Translator) supported(lang string) bool {
	for _, l := range t.languages {
		if l == lang {
			return true
		}
	}
	return false
}

// I18n resolves the request language from the `lang` query parameter or the
// session and stores a translate function in the context.
func I18n(config I18nConfig) gin.HandlerFunc {
	translator, err := NewTranslator(config)
	if err != nil {
		log.Warnf("Failed to load locales from %s, messages will not be localized: %v", config.LocalesDir, err)
		return func(c *gin.Context) {
			c.Set("t", func(key string) string { return key })
			c.Next()
		}
	}

	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && translator.supported(lang) {
			session.Set("language", lang)
			if err := session.Save(); err != nil {
				log.Debugf("Failed to save language to session: %v", err)
			}
		} else if stored, ok := session.Get("language").(string); ok {
			lang = stored
		}
		if lang == "" || !translator.supported(lang) {
			lang = config.DefaultLanguage
		}

		c.Set("language", lang)
		c.Set("t", func(key string) string {
			return translator.Translate(lang, key)
		})
		c.Next()
	}
}

// T returns the request-scoped translate function.
func T(c *gin.Context) func(string) string {
	if fn, ok := c.Get("t"); ok {
		if translate, ok := fn.(func(string) string); ok {
			return translate
		}
	}
	return func(key string) string { return key }
}

// flatten turns nested locale maps into dot-separated keys.
func flatten(input map[string]interface{}, prefix string) map[string]string {
	result := make(map[string]string)
	for k, v := range input {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]interface{}:
			for ck, cv := range flatten(child, key) {
				result[ck] = cv
			}
		case string:
			result[key] = child
		}
	}
	return result
}
