// Package httputil provides shared HTTP response and request helpers.
//
// All CropLink API responses use a JSON:API-like envelope:
//
//	{"data": {"type": "role", "id": "42", "attributes": {...}}}
//
// Errors carry a machine-readable code so clients can distinguish denial
// reasons without parsing messages:
//
//	{"error": {"code": "TENANT_MISMATCH", "message": "..."}}
package httputil
