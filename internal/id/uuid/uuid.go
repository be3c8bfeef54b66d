// Package uuid generates job and request identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID strings. The zero value produces random (v4) IDs.
type Generator struct {
	timeOrdered bool
}

// New returns a Generator of random v4 IDs, used for job IDs.
func New() *Generator {
	return &Generator{}
}

// NewTimeOrdered returns a Generator of v7 IDs, which sort by creation time.
func NewTimeOrdered() *Generator {
	return &Generator{timeOrdered: true}
}

// NewID returns a new identifier.
func (g Generator) NewID() (string, error) {
	if g.timeOrdered {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate uuid7: %w", err)
		}
		return id.String(), nil
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String(), nil
}
