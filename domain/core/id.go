package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FindingID identifies a single finding.
type FindingID string

// NewFindingID creates a time-ordered identifier using UUID v7, falling back
// to v4 if v7 generation fails.
func NewFindingID() FindingID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return FindingID(id.String())
}

// String returns the string representation
func (id FindingID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id FindingID) IsEmpty() bool {
	return id == ""
}

// ParseFindingID parses a string into FindingID
func ParseFindingID(s string) (FindingID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("finding ID cannot be empty")
	}
	return FindingID(s), nil
}
