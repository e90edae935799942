// Package entity keeps a record store and an index consistent for one
// entity type. Every domain object in the portal is persisted through a
// Store built from a Descriptor.
package entity

import (
	"encoding/json"
	"fmt"
)

// SingletonID is the fixed id of entity types that hold exactly one record.
const SingletonID = "singleton"

// Entity is anything with a stable string id.
type Entity interface {
	EntityID() string
}

// Descriptor names an entity type. Initial is the default state that stored
// bodies are decoded over, so fields added later pick up their defaults.
type Descriptor[T Entity] struct {
	TypeName  string
	IndexName string
	Initial   T
}

func (d Descriptor[T]) validate() error {
	if d.TypeName == "" {
		return fmt.Errorf("descriptor: type name is required")
	}
	if d.IndexName == "" {
		return fmt.Errorf("descriptor %s: index name is required", d.TypeName)
	}
	if _, err := json.Marshal(d.Initial); err != nil {
		return fmt.Errorf("descriptor %s: initial state: %w", d.TypeName, err)
	}
	return nil
}
