package gateways

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
)

// checksumCalculator computes SHA-256 file fingerprints
type checksumCalculator struct {
	fs afero.Fs
}

var _ gateways.ChecksumCalculator = (*checksumCalculator)(nil)

// NewChecksumCalculator creates a checksum calculator over fs
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewChecksumCalculator(fs afero.Fs) *checksumCalculator {
	return &checksumCalculator{fs: fs}
}

// Calculate hashes the file content and records its size and mtime
func (c *checksumCalculator) Calculate(_ context.Context, path string) (entities.FileChecksum, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return entities.FileChecksum{}, fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return entities.FileChecksum{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return entities.FileChecksum{}, fmt.Errorf("%s is a directory", path)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return entities.FileChecksum{}, fmt.Errorf("failed to hash file: %w", err)
	}

	return entities.FileChecksum{
		Path:     path,
		Checksum: hex.EncodeToString(h.Sum(nil)),
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}, nil
}

// VerifyChecksum compares a file's SHA-256 with an expected hex digest
func (c *checksumCalculator) VerifyChecksum(ctx context.Context, path, expectedSum string) error {
	sum, err := c.Calculate(ctx, path)
	if err != nil {
		return err
	}
	if sum.Checksum != expectedSum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedSum, sum.Checksum)
	}
	return nil
}
