package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"costa-catalog/models"
	"costa-catalog/schema"
)

// FeedConfig is one entry of the feeds file.
type FeedConfig struct {
	ID      string         `yaml:"id"`
	URL     string         `yaml:"url"`
	Enabled *bool          `yaml:"enabled"`
	Profile schema.Profile `yaml:"profile"`
}

type feedsFile struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

var feedIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LoadFeeds reads and validates the feeds file at path.
func LoadFeeds(path string) ([]models.FeedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read feeds file: %w", err)
	}
	feeds, err := ParseFeeds(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return feeds, nil
}

// ParseFeeds decodes a feeds document and compiles every profile. Unknown
// keys, duplicate ids and invalid profiles are rejected so a bad mapping
// fails at startup instead of silently dropping every record.
func ParseFeeds(data []byte) ([]models.FeedSource, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc feedsFile
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feeds: %w", err)
	}
	if len(doc.Feeds) == 0 {
		return nil, fmt.Errorf("no feeds configured")
	}

	seen := make(map[string]bool, len(doc.Feeds))
	out := make([]models.FeedSource, 0, len(doc.Feeds))
	for i, fc := range doc.Feeds {
		if !feedIDPattern.MatchString(fc.ID) {
			return nil, fmt.Errorf("feed #%d: invalid id %q", i+1, fc.ID)
		}
		if seen[fc.ID] {
			return nil, fmt.Errorf("feed %s: duplicate id", fc.ID)
		}
		seen[fc.ID] = true
		if fc.URL == "" {
			return nil, fmt.Errorf("feed %s: url is required", fc.ID)
		}
		if fc.Enabled != nil && !*fc.Enabled {
			continue
		}

		compiled, err := schema.Compile(fc.Profile)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", fc.ID, err)
		}
		out = append(out, models.FeedSource{ID: fc.ID, URL: fc.URL, Profile: compiled})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("every feed is disabled")
	}
	return out, nil
}
