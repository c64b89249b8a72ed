package guard

import (
	"context"
	"fmt"

	"github.com/croplink/croplink/pkg/audit"
	"github.com/croplink/croplink/pkg/observability"
	"github.com/croplink/croplink/pkg/orgs"
	"github.com/croplink/croplink/pkg/rbac"
)

// Stage names, used in metrics labels and audit events
const (
	StageAuthentication    = "authentication"
	StageOrgIsolation      = "org_isolation"
	StageFeatureAccess     = "feature_access"
	StagePermissionCheck   = "permission_check"
	StageResourceOwnership = "resource_ownership"
)

// Result is the outcome of a stage or of the whole chain
type Result struct {
	Allowed bool
	// Bypassed marks a stage skipped by a platform admin
	Bypassed bool
	Kind     rbac.Kind
	Message  string
	// Stage is the stage that denied; set by the runner
	Stage string
}

// Pass allows the request to continue
func Pass() Result {
	return Result{Allowed: true}
}

// Bypass allows the request to continue and records a platform-admin skip
func Bypass() Result {
	return Result{Allowed: true, Bypassed: true}
}

// Deny halts the chain with a typed denial
func Deny(kind rbac.Kind, format string, args ...interface{}) Result {
	return Result{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Err converts a denial into a typed error, nil for allowed results
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return rbac.E(r.Kind, "%s", r.Message)
}

// ResourceContext describes the resource a request targets, pre-fetched by
// the calling handler. The ownership stage never loads resources itself.
type ResourceContext struct {
	Type            string
	ID              string
	OwnerID         *int64
	AssignedUserIDs []int64
	OrganizationID  *int64

	// MinRoleLevel lets non-owners through when their highest active role
	// meets the bar. Zero means ownership is strictly required.
	MinRoleLevel int
}

// Request carries a single authorization decision through the chain. The
// authentication stage fills Principal; later stages only read.
type Request struct {
	Token      string
	Principal  *rbac.Principal
	Permission rbac.Permission
	Feature    orgs.Feature
	OrgID      *int64
	Resource   *ResourceContext
}

// StageFunc evaluates one stage of the chain
type StageFunc func(ctx context.Context, req *Request) Result

// Stage pairs a stage function with its name
type Stage struct {
	Name string
	Run  StageFunc
}

// Chain evaluates stages in order, halting on the first denial
type Chain struct {
	stages      []Stage
	auditLogger audit.Logger
	metrics     *observability.Metrics
}

// NewChain creates a chain over the given stages. auditLogger and metrics
// may be nil.
func NewChain(auditLogger audit.Logger, metrics *observability.Metrics, stages ...Stage) *Chain {
	if auditLogger == nil {
		auditLogger = audit.NewNoopLogger()
	}
	return &Chain{stages: stages, auditLogger: auditLogger, metrics: metrics}
}

// Evaluate runs the chain for one request
func (c *Chain) Evaluate(ctx context.Context, req *Request) Result {
	for _, stage := range c.stages {
		result := stage.Run(ctx, req)

		if result.Bypassed {
			c.recordBypass(ctx, req, stage.Name)
			continue
		}
		if !result.Allowed {
			result.Stage = stage.Name
			c.recordDenial(ctx, req, result)
			return result
		}
	}

	if c.metrics != nil {
		c.metrics.RecordDecision(true)
	}
	return Pass()
}

func (c *Chain) recordBypass(ctx context.Context, req *Request, stage string) {
	if c.metrics != nil {
		c.metrics.RecordBypass(stage)
	}

	var userID, orgID *int64
	if req.Principal != nil {
		id := req.Principal.UserID
		userID = &id
		orgID = req.Principal.OrganizationID
	}
	c.auditLogger.Log(ctx, audit.BypassEvent(userID, orgID, stage))
}

func (c *Chain) recordDenial(ctx context.Context, req *Request, result Result) {
	if c.metrics != nil {
		c.metrics.RecordDenial(result.Stage, string(result.Kind))
		c.metrics.RecordDecision(false)
	}

	var userID, orgID *int64
	if req.Principal != nil {
		id := req.Principal.UserID
		userID = &id
		orgID = req.Principal.OrganizationID
	}
	c.auditLogger.Log(ctx, audit.DenialEvent(userID, orgID, result.Stage, string(result.Kind), result.Message))
}
