package metadata

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSchemaFile reads and validates a YAML schema description.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s, err := ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", path, err)
	}
	log.Printf("Loaded schema %s with %d types (%d entities)", path, len(s.Types), len(s.Entities()))
	return s, nil
}

// ParseSchema decodes a YAML schema description and validates it.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
