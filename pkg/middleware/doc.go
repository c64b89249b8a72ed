// Package middleware provides HTTP middleware for request identity and
// rate limiting.
//
// # Middleware Ordering Requirements
//
// The rate limiter keys requests by the authenticated principal's
// organization, which the guard middleware puts on the request context.
// Incorrect ordering silently downgrades organization limits to the
// anonymous per-IP limit.
//
// REQUIRED ORDERING (outer to inner):
//  1. RequestID - stamps a request ID for logs and audit events
//  2. Logging - attaches the request-scoped logger
//  3. guard.Middleware.Require - authenticates and sets the principal
//  4. RateLimit - applies the organization's plan limit
//
// Example:
//
//	router.Use(middleware.RequestID)
//	router.Use(middleware.Logging(logger))
//	api := router.PathPrefix("/rbac").Subrouter()
//	api.Use(guardMW.Require(rbac.ResourceRole, rbac.ActionManage))
//	api.Use(rateLimiter.Handler)
//
// # Rate Limiting
//
// Organization limits come from the plan quotas (requests per hour); see
// pkg/orgs. Unauthenticated requests fall back to a per-IP limit. With
// Redis enabled the window counters are shared across instances; without
// it each instance counts locally.
package middleware
