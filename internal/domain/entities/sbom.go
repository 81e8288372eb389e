package entities

import "time"

// SBOM represents a CycloneDX Software Bill of Materials
type SBOM struct {
	BOMFormat    string      `json:"bomFormat"`   // "CycloneDX"
	SpecVersion  string      `json:"specVersion"` // "1.4"
	SerialNumber string      `json:"serialNumber,omitempty"`
	Version      int         `json:"version"`
	Metadata     Metadata    `json:"metadata"`
	Components   []Component `json:"components"`
}

// Component represents a software component in the SBOM
type Component struct {
	Type    string `json:"type"` // "application", "library", "framework", etc.
	Name    string `json:"name"`
	Group   string `json:"group,omitempty"`
	Version string `json:"version,omitempty"`
	Scope   string `json:"scope,omitempty"` // "required", "optional", "excluded"
	PURL    string `json:"purl,omitempty"`
	Hashes  []Hash `json:"hashes,omitempty"`
}

// Hash represents a cryptographic hash of a component
type Hash struct {
	Algorithm string `json:"alg"` // "SHA-256", "SHA-512", etc.
	Value     string `json:"content"`
}

// Metadata contains SBOM generation metadata
type Metadata struct {
	Timestamp time.Time  `json:"timestamp"`
	Tools     []Tool     `json:"tools,omitempty"`
	Component *Component `json:"component,omitempty"`
}

// Tool represents a tool used to generate the SBOM
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
