package entities

import "errors"

// Sentinel errors shared across layers
var (
	ErrScanNotFound        = errors.New("scan not found")
	ErrScanNotRunning      = errors.New("scan is not running")
	ErrFileTooLarge        = errors.New("file exceeds size limit")
	ErrUnsupportedManifest = errors.New("unsupported manifest")
	ErrStateNotFound       = errors.New("scan state not found")
)
