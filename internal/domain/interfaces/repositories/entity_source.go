package repositories

import (
	"context"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// EntitySource resolves the entities a scan request refers to
type EntitySource interface {
	// Resolve looks entities up by id; unknown ids are skipped
	Resolve(ctx context.Context, ids []string) ([]entities.Entity, error)

	// Recent returns up to limit file entities, most recently modified first
	Recent(ctx context.Context, limit int) ([]entities.Entity, error)
}

// PolicySource loads and stores policy configuration and suppressions
type PolicySource interface {
	LoadPolicies(ctx context.Context) (*entities.PolicyDocument, error)
	LoadSuppressions(ctx context.Context) ([]entities.SuppressionRule, error)
	SaveSuppressions(ctx context.Context, rules []entities.SuppressionRule) error
}
