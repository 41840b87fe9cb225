package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random identifier.
func New() string {
	return uuid.NewString()
}

// Session returns a short identifier for naming benchmark outputs.
func Session() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
