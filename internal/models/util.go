package models

import (
	"github.com/google/uuid"
)

// GenerateID generates a unique row id. Used only by backends that own id
// assignment (the dev gateway); repositories never call this.
func GenerateID() string {
	return uuid.New().String()
}
