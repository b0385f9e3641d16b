// Package i18n resolves request languages and renders localized messages
// from catalogs embedded at build time.
package i18n

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var ErrUnknownLocale = errors.New("unknown default locale")

// Dictionary is immutable after construction and safe for concurrent use.
type Dictionary struct {
	fallback language.Tag
	tags     []language.Tag
	matcher  language.Matcher
	catalogs map[language.Tag]map[string]string
}

// Load builds a Dictionary from the embedded locale files.
func Load(defaultLocale string) (*Dictionary, error) {
	catalogs, err := parseCatalogs(localeFS, "locales")
	if err != nil {
		return nil, err
	}
	return NewDictionary(defaultLocale, catalogs)
}

func NewDictionary(defaultLocale string, catalogs map[string]map[string]string) (*Dictionary, error) {
	fallback, err := language.Parse(strings.TrimSpace(defaultLocale))
	if err != nil {
		return nil, fmt.Errorf("parse default locale %q: %w", defaultLocale, err)
	}
	names := make([]string, 0, len(catalogs))
	for name := range catalogs {
		names = append(names, name)
	}
	sort.Strings(names)

	d := &Dictionary{fallback: fallback, catalogs: make(map[language.Tag]map[string]string, len(catalogs))}
	d.tags = append(d.tags, fallback)
	for _, name := range names {
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", name, err)
		}
		msgs := make(map[string]string, len(catalogs[name]))
		for k, v := range catalogs[name] {
			msgs[k] = v
		}
		d.catalogs[tag] = msgs
		if tag != fallback {
			d.tags = append(d.tags, tag)
		}
	}
	if _, ok := d.catalogs[fallback]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocale, fallback)
	}
	// The first tag is the matcher's default.
	d.matcher = language.NewMatcher(d.tags)
	return d, nil
}

func (d *Dictionary) Default() language.Tag { return d.fallback }

func (d *Dictionary) Supported() []language.Tag {
	out := make([]language.Tag, len(d.tags))
	copy(out, d.tags)
	return out
}

// Match picks the supported language that best serves an Accept-Language header.
func (d *Dictionary) Match(acceptLanguage string) language.Tag {
	acceptLanguage = strings.TrimSpace(acceptLanguage)
	if acceptLanguage == "" {
		return d.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return d.fallback
	}
	_, idx, confidence := d.matcher.Match(tags...)
	if confidence == language.No {
		return d.fallback
	}
	return d.tags[idx]
}

// Message renders key for tag, substituting {name} placeholders from args.
// Missing keys fall back to the default language and then to the key itself.
func (d *Dictionary) Message(tag language.Tag, key string, args map[string]any) string {
	msg, ok := d.lookup(tag, key)
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

func (d *Dictionary) lookup(tag language.Tag, key string) (string, bool) {
	if msgs, ok := d.catalogs[tag]; ok {
		if msg, ok := msgs[key]; ok {
			return msg, true
		}
	}
	if base, _ := tag.Base(); base.String() != tag.String() {
		if parent, err := language.Parse(base.String()); err == nil {
			if msg, ok := d.catalogs[parent][key]; ok {
				return msg, true
			}
		}
	}
	msg, ok := d.catalogs[d.fallback][key]
	return msg, ok
}

func parseCatalogs(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	out := make(map[string]map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || (path.Ext(entry.Name()) != ".yaml" && path.Ext(entry.Name()) != ".yml") {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		var doc map[string]map[string]string
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		for lang, msgs := range doc {
			if _, dup := out[lang]; dup {
				return nil, fmt.Errorf("locale %q defined twice", lang)
			}
			out[lang] = msgs
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no locale catalogs found")
	}
	return out, nil
}

type languageKey struct{}

func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, languageKey{}, tag)
}

// LanguageFromContext returns language.Und when no language was attached.
func LanguageFromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(languageKey{}).(language.Tag); ok {
		return tag
	}
	return language.Und
}
