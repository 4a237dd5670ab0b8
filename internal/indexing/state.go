package indexing

import "time"

// EntityState is the full state of one entity as handed to the index. Property
// values are Go scalars, slices for collections and maps for value objects.
// Associations hold target identities.
type EntityState struct {
	Identity         string              `yaml:"identity" json:"identity"`
	Type             string              `yaml:"type" json:"type"`
	Version          string              `yaml:"version,omitempty" json:"version,omitempty"`
	Modified         time.Time           `yaml:"modified,omitempty" json:"modified,omitempty"`
	Properties       map[string]any      `yaml:"properties,omitempty" json:"properties,omitempty"`
	Associations     map[string]string   `yaml:"associations,omitempty" json:"associations,omitempty"`
	ManyAssociations map[string][]string `yaml:"many_associations,omitempty" json:"many_associations,omitempty"`
}
