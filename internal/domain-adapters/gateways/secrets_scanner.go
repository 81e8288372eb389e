package gateways

import (
	"context"
	"fmt"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
)

// SecretsToolName is stamped on issues produced by the secrets scanner
const SecretsToolName = "secrets"

// secretsScanner adapts the rule engine's secrets rules to the opaque
// Scanner contract the orchestrator consumes
type secretsScanner struct {
	engine services.RuleEngine
}

var _ gateways.Scanner = (*secretsScanner)(nil)

// NewSecretsScanner creates a secrets scanner backed by engine
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewSecretsScanner(engine services.RuleEngine) *secretsScanner {
	return &secretsScanner{engine: engine}
}

// Scan runs only the secrets category, whatever categories opts enables
func (s *secretsScanner) Scan(ctx context.Context, items []entities.Entity, opts entities.ScanOptions) ([]entities.SecurityIssue, error) {
	opts.Categories = []entities.RuleCategory{entities.CategorySecrets}

	issues, err := s.engine.Scan(ctx, items, opts)
	if err != nil {
		return nil, fmt.Errorf("secrets scan failed: %w", err)
	}
	for i := range issues {
		issues[i].Tool = SecretsToolName
	}
	return issues, nil
}
