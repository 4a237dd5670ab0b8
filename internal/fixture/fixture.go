// Package fixture holds the people, cities and domains model used by tests and
// by the seed command.
package fixture

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"qindex/internal/indexing"
	"qindex/internal/metadata"
)

//go:embed schema.yaml
var schemaYAML []byte

//go:embed entities.yaml
var entitiesYAML []byte

// SchemaYAML returns the raw schema description.
func SchemaYAML() []byte { return schemaYAML }

// Schema parses a fresh copy of the fixture schema.
func Schema() (*metadata.Schema, error) {
	return metadata.ParseSchema(schemaYAML)
}

// Registry builds the registry of a fresh database for the fixture schema.
func Registry() (*metadata.Registry, error) {
	s, err := Schema()
	if err != nil {
		return nil, err
	}
	return metadata.Build(s, metadata.Snapshot{}, metadata.BuildOptions{})
}

// Entities returns the fixture entities in seeding order.
func Entities() ([]indexing.EntityState, error) {
	return ParseEntities(entitiesYAML)
}

// ParseEntities decodes a document of the form {entities: [...]}.
func ParseEntities(data []byte) ([]indexing.EntityState, error) {
	var doc struct {
		Entities []indexing.EntityState `yaml:"entities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse entities: %w", err)
	}
	return doc.Entities, nil
}
