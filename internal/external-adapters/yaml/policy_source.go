package yaml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/repositories"
)

// ChecksumVerifier checks a file against a pinned SHA-256 digest
type ChecksumVerifier interface {
	VerifyChecksum(ctx context.Context, path, expectedSum string) error
}

// FileSourceConfig locates the policy and suppression files
type FileSourceConfig struct {
	// PolicyPath is optional; empty selects the built-in policies
	PolicyPath string
	// SignaturePath is a detached signature over the policy file
	SignaturePath string
	// PolicySHA256 pins the policy file content
	PolicySHA256 string
	// SuppressionsPath is optional; a missing file means no suppressions
	SuppressionsPath string
}

// FileSource implements repositories.PolicySource over policy and
// suppression files
type FileSource struct {
	fs        afero.Fs
	parser    *PolicyParser
	cfg       FileSourceConfig
	verifier  gateways.SignatureVerifier
	checksums ChecksumVerifier
	logger    interfaces.Logger
	mu        sync.Mutex
}

var _ repositories.PolicySource = (*FileSource)(nil)

// NewFileSource creates a file-backed policy source. verifier and checksums
// may be nil when no signature or pin is configured.
func NewFileSource(fs afero.Fs, cfg FileSourceConfig, verifier gateways.SignatureVerifier, checksums ChecksumVerifier, logger interfaces.Logger) *FileSource {
	return &FileSource{
		fs:        fs,
		parser:    NewPolicyParser(),
		cfg:       cfg,
		verifier:  verifier,
		checksums: checksums,
		logger:    interfaces.OrNoOp(logger),
	}
}

// LoadPolicies reads, authenticates and parses the policy file
func (s *FileSource) LoadPolicies(ctx context.Context) (*entities.PolicyDocument, error) {
	if s.cfg.PolicyPath == "" {
		return nil, nil
	}

	data, err := afero.ReadFile(s.fs, s.cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", s.cfg.PolicyPath, err)
	}

	if s.cfg.PolicySHA256 != "" {
		if s.checksums == nil {
			return nil, errors.New("policy checksum pinned but no checksum verifier configured")
		}
		if err := s.checksums.VerifyChecksum(ctx, s.cfg.PolicyPath, strings.ToLower(s.cfg.PolicySHA256)); err != nil {
			return nil, fmt.Errorf("policy file %s: %w", s.cfg.PolicyPath, err)
		}
	}

	if s.cfg.SignaturePath != "" {
		if s.verifier == nil {
			return nil, errors.New("policy signature configured but no keyring loaded")
		}
		sig, err := afero.ReadFile(s.fs, s.cfg.SignaturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy signature: %w", err)
		}
		if err := s.verifier.Verify(data, sig); err != nil {
			return nil, fmt.Errorf("policy file %s: %w", s.cfg.PolicyPath, err)
		}
		s.logger.Debug("policy signature verified", interfaces.F("path", s.cfg.PolicyPath))
	}

	doc, err := s.parser.ParsePolicies(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.cfg.PolicyPath, err)
	}
	return doc, nil
}

// LoadSuppressions reads the suppression file; a missing file yields none
func (s *FileSource) LoadSuppressions(_ context.Context) ([]entities.SuppressionRule, error) {
	if s.cfg.SuppressionsPath == "" {
		return nil, nil
	}

	data, err := afero.ReadFile(s.fs, s.cfg.SuppressionsPath)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("no suppression file", interfaces.F("path", s.cfg.SuppressionsPath))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read suppression file %s: %w", s.cfg.SuppressionsPath, err)
	}

	rules, err := s.parser.ParseSuppressions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.cfg.SuppressionsPath, err)
	}
	return rules, nil
}

// SaveSuppressions rewrites the suppression file, as YAML when its
// extension says so and JSON otherwise
func (s *FileSource) SaveSuppressions(_ context.Context, rules []entities.SuppressionRule) error {
	if s.cfg.SuppressionsPath == "" {
		return errors.New("no suppression file configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rules == nil {
		rules = []entities.SuppressionRule{}
	}
	doc := struct {
		Suppressions []entities.SuppressionRule `json:"suppressions" yaml:"suppressions"`
	}{Suppressions: rules}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(s.cfg.SuppressionsPath)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode suppressions: %w", err)
	}

	if dir := filepath.Dir(s.cfg.SuppressionsPath); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	tmp := s.cfg.SuppressionsPath + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write suppressions: %w", err)
	}
	if err := s.fs.Rename(tmp, s.cfg.SuppressionsPath); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace suppression file: %w", err)
	}

	s.logger.Info("suppressions saved",
		interfaces.F("path", s.cfg.SuppressionsPath),
		interfaces.F("count", len(rules)),
	)
	return nil
}
