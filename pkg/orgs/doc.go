// Package orgs provides organization and subscription plan lookups for the
// CropLink platform.
//
// Every tenant is an organization (a farm operator, commodity trader, or
// cooperative) on one of four plan tiers. Plans map to default feature sets,
// and billing can grant extra features on the organization row itself; the
// authorization guard chain consults HasFeature over the union before any
// permission check, so that a tenant on the wrong plan gets a feature denial,
// not a permission denial. Plans also carry API quotas used by the rate
// limiting middleware.
//
// Organization provisioning and billing live elsewhere; this package is a
// read-side service.
package orgs
