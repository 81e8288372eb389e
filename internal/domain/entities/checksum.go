package entities

import "time"

// FileChecksum fingerprints file content for change detection
type FileChecksum struct {
	Path     string    `json:"path"`
	Checksum string    `json:"checksum"` // hex SHA-256
	ModTime  time.Time `json:"modTime"`
	Size     int64     `json:"size"`
}

// IncrementalScanState is the checksum snapshot recorded by a scan
type IncrementalScanState struct {
	LastScanTimestamp time.Time               `json:"lastScanTimestamp"`
	Checksums         map[string]FileChecksum `json:"checksums"`
	BaselineScanID    string                  `json:"baselineScanId,omitempty"`
}

// NewIncrementalScanState returns an empty state anchored at the Unix epoch
func NewIncrementalScanState() *IncrementalScanState {
	return &IncrementalScanState{
		LastScanTimestamp: time.Unix(0, 0).UTC(),
		Checksums:         make(map[string]FileChecksum),
	}
}

// Clone returns a deep copy so a cached state is never mutated by a later scan
func (s *IncrementalScanState) Clone() *IncrementalScanState {
	if s == nil {
		return NewIncrementalScanState()
	}
	out := &IncrementalScanState{
		LastScanTimestamp: s.LastScanTimestamp,
		BaselineScanID:    s.BaselineScanID,
		Checksums:         make(map[string]FileChecksum, len(s.Checksums)),
	}
	for k, v := range s.Checksums {
		out.Checksums[k] = v
	}
	return out
}
