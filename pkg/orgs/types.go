package orgs

import "time"

// PlanTier represents subscription plan tiers
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanBasic      PlanTier = "basic"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// OrgType represents the kind of agricultural business an organization runs
type OrgType string

const (
	OrgTypeFarmOperator    OrgType = "farm_operator"
	OrgTypeCommodityTrader OrgType = "commodity_trader"
	OrgTypeCooperative     OrgType = "cooperative"
)

// Feature identifies a plan-gated platform capability
type Feature string

const (
	FeatureMarketplace       Feature = "marketplace"
	FeatureExport            Feature = "export"
	FeatureBulkOperations    Feature = "bulk_operations"
	FeatureAdvancedAnalytics Feature = "advanced_analytics"
	FeaturePublicAPI         Feature = "public_api"
	FeatureAIInsights        Feature = "ai_insights"
	FeatureCustomRoles       Feature = "custom_roles"
)

// Organization represents a tenant. Features holds billing-granted features
// persisted on the organization row; billing mutates it, this engine only
// reads it.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Type      OrgType   `json:"type"`
	Plan      PlanTier  `json:"plan"`
	Features  []Feature `json:"features"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveFeatures returns the plan's default features unioned with the
// organization's billing-granted ones.
func (o *Organization) EffectiveFeatures() []Feature {
	features := DefaultFeatures(o.Plan)
	have := make(map[Feature]struct{}, len(features))
	for _, f := range features {
		have[f] = struct{}{}
	}
	for _, f := range o.Features {
		if _, ok := have[f]; !ok {
			features = append(features, f)
		}
	}
	return features
}

// HasFeature reports whether a feature is effective for the organization
func (o *Organization) HasFeature(feature Feature) bool {
	for _, f := range o.EffectiveFeatures() {
		if f == feature {
			return true
		}
	}
	return false
}

// DefaultFeatures returns the features included in a plan tier. Tiers are
// cumulative: every tier includes everything below it.
func DefaultFeatures(plan PlanTier) []Feature {
	features := []Feature{FeatureMarketplace}
	switch plan {
	case PlanEnterprise:
		features = append(features, FeatureAIInsights, FeatureCustomRoles)
		fallthrough
	case PlanPro:
		features = append(features, FeatureAdvancedAnalytics, FeaturePublicAPI)
		fallthrough
	case PlanBasic:
		features = append(features, FeatureExport, FeatureBulkOperations)
	}
	return features
}

// PlanQuotas represents per-plan resource limits
type PlanQuotas struct {
	MaxUsers            int
	APIRateLimitPerHour int
	MaxBulkBatchSize    int
}

// DefaultQuotas returns the quotas for a plan tier
func DefaultQuotas(plan PlanTier) PlanQuotas {
	switch plan {
	case PlanBasic:
		return PlanQuotas{MaxUsers: 25, APIRateLimitPerHour: 5000, MaxBulkBatchSize: 100}
	case PlanPro:
		return PlanQuotas{MaxUsers: 100, APIRateLimitPerHour: 25000, MaxBulkBatchSize: 500}
	case PlanEnterprise:
		return PlanQuotas{MaxUsers: 1000, APIRateLimitPerHour: 100000, MaxBulkBatchSize: 1000}
	default:
		return PlanQuotas{MaxUsers: 5, APIRateLimitPerHour: 1000, MaxBulkBatchSize: 25}
	}
}
