// Package seed imports link types, entity types, entities and links from
// YAML documents in the seed directory.
//
// A document may declare any of its four sections; entities are addressed
// by their seed key so documents can reference each other. Links are
// applied in document order, so a list of links with explicit indexes
// reproduces the intended order of an ordered group.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/linkorder/internal/models"
)

// Document is one parsed seed file.
type Document struct {
	LinkTypes   []LinkTypeSpec   `yaml:"linkTypes"`
	EntityTypes []EntityTypeSpec `yaml:"entityTypes"`
	Entities    []EntitySpec     `yaml:"entities"`
	Links       []LinkSpec       `yaml:"links"`
}

// LinkTypeSpec declares a link type.
type LinkTypeSpec struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	PluralTitle string `yaml:"pluralTitle"`
	Description string `yaml:"description"`
}

// EntityTypeSpec declares an entity type and the links it may own.
type EntityTypeSpec struct {
	ID            string                    `yaml:"id"`
	Title         string                    `yaml:"title"`
	OutgoingLinks []models.OutgoingLinkRule `yaml:"outgoingLinks"`
}

// EntitySpec declares an entity by seed key.
type EntitySpec struct {
	Key        string         `yaml:"key"`
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties"`
}

// LinkSpec declares a link between two seeded entities. A nil Index appends.
type LinkSpec struct {
	Source     string         `yaml:"source"`
	LinkType   string         `yaml:"linkType"`
	Target     string         `yaml:"target"`
	Index      *int           `yaml:"index"`
	Properties map[string]any `yaml:"properties"`
}

// Validate implements validation.Validatable.
func (d Document) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.LinkTypes),
		validation.Field(&d.EntityTypes),
		validation.Field(&d.Entities),
		validation.Field(&d.Links),
	)
}

// Validate implements validation.Validatable.
func (s LinkTypeSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (s EntityTypeSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (s EntitySpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Key, validation.Required),
		validation.Field(&s.Type, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (s LinkSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Source, validation.Required),
		validation.Field(&s.LinkType, validation.Required),
		validation.Field(&s.Target, validation.Required),
		validation.Field(&s.Index, validation.Min(0)),
	)
}

// Parse decodes and validates a seed document. Unknown keys are rejected
// so typos surface instead of being silently ignored. An empty file is an
// empty document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("seed: validate: %w", err)
	}
	return &doc, nil
}
