// Package news scrapes Formula 1 headlines, stores them and serves the latest.
package news

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind selects how a source page is parsed.
type Kind string

const (
	KindHTML Kind = "html"
	KindRSS  Kind = "rss"
)

// Source is one page to pull headlines from.
type Source struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`
	URL  string `yaml:"url"`
	// ItemSelector picks one element per headline on HTML pages. The element
	// is either a link or contains one.
	ItemSelector string `yaml:"item_selector"`
	// TitleSelector picks the title inside an item. Empty uses the item text.
	TitleSelector string `yaml:"title_selector"`
	// Limit caps items taken from this source; 0 means no cap.
	Limit int `yaml:"limit"`
}

var DefaultSources = []Source{
	{
		Name:          "formula1",
		Kind:          KindHTML,
		URL:           "https://www.formula1.com/en/latest/all.html",
		ItemSelector:  ".f1-latest-listing--grid-item a",
		TitleSelector: ".f1-latest-listing--title",
	},
	{
		Name:         "espn",
		Kind:         KindHTML,
		URL:          "https://www.espn.com/f1/",
		ItemSelector: ".headlineStack__list a",
	},
	{
		Name: "formula1-rss",
		Kind: KindRSS,
		URL:  "https://www.formula1.com/en/latest/all.xml",
	},
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads a YAML list of sources. An empty path returns DefaultSources.
func LoadSources(path string) ([]Source, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSources, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read news sources: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse news sources %s: %w", path, err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("news sources %s: no sources defined", path)
	}
	for i := range f.Sources {
		if err := f.Sources[i].validate(); err != nil {
			return nil, fmt.Errorf("news sources %s: entry %d: %w", path, i, err)
		}
	}
	return f.Sources, nil
}

func (s *Source) validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return errors.New("name is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: url must be absolute http(s)", s.Name)
	}
	switch s.Kind {
	case KindRSS:
	case KindHTML:
		if strings.TrimSpace(s.ItemSelector) == "" {
			return fmt.Errorf("%s: html sources need item_selector", s.Name)
		}
	default:
		return fmt.Errorf("%s: unknown kind %q", s.Name, s.Kind)
	}
	if s.Limit < 0 {
		return fmt.Errorf("%s: limit must be >= 0", s.Name)
	}
	return nil
}
