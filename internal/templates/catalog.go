// Package templates serves the built-in catalogue of style instructions.
package templates

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"photostudio/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Template is a named, ready-made style instruction.
type Template struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	ImageURL string `yaml:"image_url" json:"image_url"`
	Prompt   string `yaml:"prompt" json:"prompt"`
}

// Category groups templates for display.
type Category struct {
	Name      string     `yaml:"name" json:"name"`
	Templates []Template `yaml:"templates" json:"templates"`
}

// Catalog is an immutable set of categories indexed by template ID.
type Catalog struct {
	categories []Category
	byID       map[string]Template
}

// Default parses the embedded catalogue.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse builds a catalogue from YAML. Template IDs must be unique and every
// template needs a prompt.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("templates: parse catalog: %w", err)
	}

	c := &Catalog{categories: doc.Categories, byID: make(map[string]Template)}
	for _, cat := range doc.Categories {
		for _, t := range cat.Templates {
			id := strings.TrimSpace(t.ID)
			if id == "" {
				return nil, fmt.Errorf("templates: category %q has a template without id", cat.Name)
			}
			if strings.TrimSpace(t.Prompt) == "" {
				return nil, fmt.Errorf("templates: template %q has no prompt", id)
			}
			if _, dup := c.byID[id]; dup {
				return nil, fmt.Errorf("templates: duplicate template id %q", id)
			}
			c.byID[id] = t
		}
	}
	return c, nil
}

// Categories returns a copy of the catalogue in display order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Category{Name: cat.Name, Templates: append([]Template(nil), cat.Templates...)}
	}
	return out
}

// Lookup finds a template by ID.
func (c *Catalog) Lookup(id string) (Template, error) {
	t, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Template{}, domain.ErrTemplateNotFound
	}
	return t, nil
}
