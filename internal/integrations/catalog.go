// Package integrations loads the catalog of external services the
// dashboard can connect agents and workflows to. The catalog is a YAML
// file maintained by operators; entries describe each service and
// whether a connection is currently configured.
package integrations

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Status describes the connection state of a catalog entry.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusPending      Status = "pending"
)

// Integration is a single catalog entry.
type Integration struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Category    string `yaml:"category" json:"category"`
	Status      Status `yaml:"status" json:"status"`
	DocsURL     string `yaml:"docs_url,omitempty" json:"docs_url,omitempty"`
}

// Catalog holds the parsed integration catalog.
type Catalog struct {
	Integrations []Integration `yaml:"integrations"`
}

// LoadCatalog reads and validates a catalog file. A missing file is not
// an error; it yields an empty catalog so the dashboard still renders.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("reading integration catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML and validates the entries.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing integration catalog: %w", err)
	}

	seen := make(map[string]bool, len(cat.Integrations))
	for i, entry := range cat.Integrations {
		if entry.ID == "" {
			return nil, fmt.Errorf("integration %d: missing id", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("integration %q: duplicate id", entry.ID)
		}
		seen[entry.ID] = true
		if entry.Name == "" {
			return nil, fmt.Errorf("integration %q: missing name", entry.ID)
		}
		switch entry.Status {
		case StatusConnected, StatusDisconnected, StatusPending:
		case "":
			cat.Integrations[i].Status = StatusDisconnected
		default:
			return nil, fmt.Errorf("integration %q: unknown status %q", entry.ID, entry.Status)
		}
	}

	sort.Slice(cat.Integrations, func(i, j int) bool {
		return cat.Integrations[i].Name < cat.Integrations[j].Name
	})

	return &cat, nil
}

// ByCategory groups entries under their category, "other" when unset.
func (c *Catalog) ByCategory() map[string][]Integration {
	out := make(map[string][]Integration)
	for _, entry := range c.Integrations {
		cat := strings.ToLower(entry.Category)
		if cat == "" {
			cat = "other"
		}
		out[cat] = append(out[cat], entry)
	}
	return out
}

// Connected returns the entries with a configured connection.
func (c *Catalog) Connected() []Integration {
	var out []Integration
	for _, entry := range c.Integrations {
		if entry.Status == StatusConnected {
			out = append(out, entry)
		}
	}
	return out
}
