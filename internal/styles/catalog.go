// Package styles holds the art style presets offered on the image surface.
package styles

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var builtin []byte

// Style is a named prompt modifier.
type Style struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	PromptModifier string `yaml:"promptModifier" json:"promptModifier"`
}

type catalogFile struct {
	Default string  `yaml:"default"`
	Styles  []Style `yaml:"styles"`
}

// Catalog is an ordered, read-only list of styles.
type Catalog struct {
	styles    []Style
	byID      map[string]int
	defaultID string
}

// Builtin parses the embedded catalog.
func Builtin() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("styles: embedded catalog is invalid: %v", err))
	}
	return c
}

// Parse decodes a YAML catalog. The first entry is the fallback for unknown ids.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("styles: decode: %w", err)
	}
	if len(file.Styles) == 0 {
		return nil, errors.New("styles: catalog is empty")
	}
	c := &Catalog{byID: make(map[string]int, len(file.Styles))}
	for _, s := range file.Styles {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, errors.New("styles: style without id")
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("styles: duplicate id %q", s.ID)
		}
		c.byID[s.ID] = len(c.styles)
		c.styles = append(c.styles, s)
	}
	c.defaultID = c.styles[0].ID
	if _, ok := c.byID[file.Default]; ok {
		c.defaultID = file.Default
	}
	return c, nil
}

// All returns the styles in catalog order.
func (c *Catalog) All() []Style {
	return append([]Style(nil), c.styles...)
}

// Default is the style preselected on the image surface.
func (c *Catalog) Default() Style {
	return c.styles[c.byID[c.defaultID]]
}

// Lookup returns the style for id, or the first catalog entry when id is
// unknown. An empty id selects the default style.
func (c *Catalog) Lookup(id string) Style {
	id = strings.TrimSpace(id)
	if id == "" {
		return c.Default()
	}
	if i, ok := c.byID[id]; ok {
		return c.styles[i]
	}
	return c.styles[0]
}
