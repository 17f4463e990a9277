package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-auth-api/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

// RoleStore is the minimal persistence interface the resolver requires.
type RoleStore interface {
	Get(ctx context.Context, name string) (*domain.Role, error)
}

// Resolver turns role names into permission sets, caching the lookup. Roles
// change rarely, and access credentials embed a snapshot anyway, so a short
// cache window only narrows an already accepted staleness bound.
type Resolver struct {
	roles RoleStore
	cache *gocache.Cache
}

func NewResolver(roles RoleStore, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		roles: roles,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// PermissionsForRole returns the permission set granted by the role.
func (r *Resolver) PermissionsForRole(ctx context.Context, roleName string) ([]string, error) {
	if cached, ok := r.cache.Get(roleName); ok {
		return cached.([]string), nil
	}
	role, err := r.roles.Get(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("resolve role %q: %w", roleName, err)
	}
	perms := make([]string, len(role.Permissions))
	copy(perms, role.Permissions)
	r.cache.Set(roleName, perms, gocache.DefaultExpiration)
	return perms, nil
}
