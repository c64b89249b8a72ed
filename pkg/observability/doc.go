// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown for the CropLink platform.
//
// The authorization engine reports every guard decision through the metrics
// in this package: croplink_authz_decisions_total (final outcome),
// croplink_authz_denials_total (per stage and denial kind), and
// croplink_authz_platform_admin_bypass_total (per bypassed stage), making
// platform-admin bypasses attributable in dashboards as well as audit logs.
package observability
