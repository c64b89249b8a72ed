// Package audit provides security audit logging for the CropLink
// authorization engine.
//
// Every role mutation, assignment change, authorization denial, and platform
// admin bypass produces an Event. Events carry the guard stage that produced
// them, so a platform admin skipping the tenant isolation stage is visible in
// the audit trail with the same fidelity as an ordinary denial.
//
// Loggers are composable: DBLogger persists to PostgreSQL, FileLogger writes
// newline-delimited JSON, and MultiLogger fans out to both.
package audit
