package guard

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/croplink/croplink/pkg/auth"
	"github.com/croplink/croplink/pkg/observability"
	"github.com/croplink/croplink/pkg/rbac"
)

// PrincipalLoader authenticates bearer tokens and resolves principals,
// caching resolved permission sets in an expiring LRU keyed by user ID.
// Token validation itself always hits the database so revocation is
// immediate; only the resolved permission set is cached.
//
// It implements both PrincipalSource for the chain and rbac.CacheInvalidator
// for the admin handlers.
type PrincipalLoader struct {
	tokens   *auth.TokenManager
	users    *auth.Store
	resolver *rbac.Resolver
	cache    *lru.LRU[int64, *rbac.Principal]
	metrics  *observability.Metrics
}

// NewPrincipalLoader creates a loader with the given cache size and TTL.
// metrics may be nil.
func NewPrincipalLoader(tokens *auth.TokenManager, users *auth.Store, resolver *rbac.Resolver, size int, ttl time.Duration, metrics *observability.Metrics) *PrincipalLoader {
	return &PrincipalLoader{
		tokens:   tokens,
		users:    users,
		resolver: resolver,
		cache:    lru.NewLRU[int64, *rbac.Principal](size, nil, ttl),
		metrics:  metrics,
	}
}

// PrincipalFromToken validates the token and returns the principal with its
// permission set resolved.
func (l *PrincipalLoader) PrincipalFromToken(ctx context.Context, token string) (*rbac.Principal, error) {
	apiToken, err := l.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if principal, ok := l.cache.Get(apiToken.UserID); ok {
		return principal, nil
	}

	user, err := l.users.GetUser(ctx, apiToken.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, auth.ErrTokenInvalid
	}

	orgID := user.OrganizationID
	principal := &rbac.Principal{
		UserID:         user.ID,
		Username:       user.Username,
		OrganizationID: &orgID,
	}

	start := time.Now()
	set, err := l.resolver.Resolve(ctx, user.ID, principal.OrganizationID)
	if err != nil {
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.AuthzResolveDuration.Observe(time.Since(start).Seconds())
	}

	principal.Permissions = set
	l.cache.Add(user.ID, principal)
	return principal, nil
}

// InvalidateUser drops a user's cached principal
func (l *PrincipalLoader) InvalidateUser(userID int64) {
	l.cache.Remove(userID)
}

// InvalidateAll drops every cached principal
func (l *PrincipalLoader) InvalidateAll() {
	l.cache.Purge()
}
