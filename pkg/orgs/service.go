package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrOrgNotFound is returned when an organization lookup misses
var ErrOrgNotFound = errors.New("organization not found")

// Service provides organization lookups backed by PostgreSQL
type Service struct {
	db *sql.DB
}

// NewService creates a new organization service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const orgColumns = `id, name, slug, org_type, plan, features, is_active, created_at, updated_at`

func scanOrg(row *sql.Row) (*Organization, error) {
	var org Organization
	var features pq.StringArray
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.Type, &org.Plan, &features,
		&org.IsActive, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}
	org.Features = toFeatures(features)
	return &org, nil
}

func toFeatures(values []string) []Feature {
	if len(values) == 0 {
		return nil
	}
	features := make([]Feature, len(values))
	for i, v := range values {
		features[i] = Feature(v)
	}
	return features
}

// GetOrganization retrieves an organization by ID
func (s *Service) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id)
	return scanOrg(row)
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *Service) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug)
	return scanOrg(row)
}

// ListOrganizations lists active organizations, optionally filtered by type
func (s *Service) ListOrganizations(ctx context.Context, orgType OrgType) ([]*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE is_active = true`
	args := []interface{}{}
	if orgType != "" {
		query += ` AND org_type = $1`
		args = append(args, orgType)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var result []*Organization
	for rows.Next() {
		var org Organization
		var features pq.StringArray
		if err := rows.Scan(
			&org.ID, &org.Name, &org.Slug, &org.Type, &org.Plan, &features,
			&org.IsActive, &org.CreatedAt, &org.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		org.Features = toFeatures(features)
		result = append(result, &org)
	}
	return result, rows.Err()
}

// FeatureEnabled reports whether a feature is effective for an organization,
// through its plan or a billing-granted entry in the features column.
// Inactive organizations have no features.
func (s *Service) FeatureEnabled(ctx context.Context, orgID int64, feature Feature) (bool, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return false, err
	}
	if !org.IsActive {
		return false, nil
	}
	return org.HasFeature(feature), nil
}

// Quotas returns the plan quotas for an organization
func (s *Service) Quotas(ctx context.Context, orgID int64) (PlanQuotas, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return PlanQuotas{}, err
	}
	return DefaultQuotas(org.Plan), nil
}
