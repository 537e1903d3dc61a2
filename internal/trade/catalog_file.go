package trade

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogDocument is the mapping form of a catalog file.
type catalogDocument struct {
	Items []string `yaml:"items"`
}

// LoadCatalogFile reads a catalog from a YAML or JSON file.
//
// The file holds either a plain sequence of identifiers or a mapping with an
// `items` sequence. An empty path yields the built-in catalog.
func LoadCatalogFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog file %s: %w", path, err)
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("load catalog file %s: %w", path, err)
	}

	return catalog, nil
}

// ParseCatalog decodes catalog bytes in either supported layout.
func ParseCatalog(data []byte) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, ErrEmptyCatalog
	}

	var ids []string
	switch document := root.Content[0]; document.Kind {
	case yaml.SequenceNode:
		if err := document.Decode(&ids); err != nil {
			return nil, fmt.Errorf("parse catalog sequence: %w", err)
		}
	case yaml.MappingNode:
		var mapped catalogDocument
		if err := document.Decode(&mapped); err != nil {
			return nil, fmt.Errorf("parse catalog mapping: %w", err)
		}
		ids = mapped.Items
	default:
		return nil, fmt.Errorf("parse catalog: unsupported document kind %d", document.Kind)
	}

	return NewCatalog(ids)
}
