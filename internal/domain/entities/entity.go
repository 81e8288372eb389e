// Package entities defines core domain models and data structures.
package entities

import (
	"path/filepath"
	"strings"
	"time"
)

// EntityType classifies a scannable entity
type EntityType string

// Entity types understood by the scanners
const (
	EntityFile      EntityType = "file"
	EntityDirectory EntityType = "directory"
	EntityModule    EntityType = "module"
	EntitySymbol    EntityType = "symbol"
)

// Entity is a file-like unit handed to the scanners
type Entity struct {
	ID           string     `json:"id"`
	Type         EntityType `json:"type"`
	Path         string     `json:"path"`
	Language     string     `json:"language,omitempty"`
	Size         int64      `json:"size,omitempty"`
	LastModified time.Time  `json:"lastModified,omitempty"`
}

// IsFile reports whether the entity is backed by file content
func (e Entity) IsFile() bool {
	return e.Type == EntityFile
}

// Extension returns the lower-cased file extension including the dot
func (e Entity) Extension() string {
	return strings.ToLower(filepath.Ext(e.Path))
}

// BaseName returns the file name without directories
func (e Entity) BaseName() string {
	return filepath.Base(e.Path)
}
