package template

import (
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// Definition is the raw template text for one category/channel pair as it
// appears in the catalog file. Which fields are required depends on the
// channel: mail needs Subject and Body, sms only Body, in-app and push
// Title and Body.
type Definition struct {
	Title   string `yaml:"title,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Body    string `yaml:"body"`
}

// Catalog maps categories to their per-channel template definitions.
type Catalog map[notification.Category]map[notification.Channel]Definition

// ParseCatalog decodes a YAML catalog document. Unknown categories and
// channels are rejected so typos surface at boot rather than at render
// time.
func ParseCatalog(content []byte) (Catalog, error) {
	var raw map[string]map[string]Definition
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, errors.Join(ErrFailedToParseCatalog, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", ErrInvalidCatalog)
	}

	catalog := make(Catalog, len(raw))
	for categoryName, channels := range raw {
		category := notification.Category(categoryName)
		if !category.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidCatalog, categoryName)
		}

		catalog[category] = make(map[notification.Channel]Definition, len(channels))
		for channelName, def := range channels {
			channel := notification.Channel(channelName)
			if !channel.Valid() || channel == notification.ChannelLive {
				return nil, fmt.Errorf("%w: unknown channel %q under %q", ErrInvalidCatalog, channelName, categoryName)
			}
			catalog[category][channel] = def
		}
	}
	return catalog, nil
}

// LoadCatalog reads and parses a catalog file from the given filesystem.
func LoadCatalog(fsys fs.FS, path string) (Catalog, error) {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog %s: %w", path, err)
	}
	return ParseCatalog(content)
}

// Merge overlays another catalog on top of this one. Definitions in the
// overlay win per category/channel pair, so deployments can override a
// few templates without restating the whole catalog.
func (c Catalog) Merge(overlay Catalog) Catalog {
	merged := make(Catalog, len(c))
	for category, channels := range c {
		merged[category] = make(map[notification.Channel]Definition, len(channels))
		for channel, def := range channels {
			merged[category][channel] = def
		}
	}
	for category, channels := range overlay {
		if merged[category] == nil {
			merged[category] = make(map[notification.Channel]Definition, len(channels))
		}
		for channel, def := range channels {
			merged[category][channel] = def
		}
	}
	return merged
}
