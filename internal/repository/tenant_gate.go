package repository

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

// tenantSource is the uncached tenant lookup.
type tenantSource interface {
	GetTenant(ctx context.Context, companyID string) (*models.Tenant, error)
}

// cachedTenant is the cache representation; Exists distinguishes a cached
// "unknown company" from a cache miss.
type cachedTenant struct {
	Exists bool `json:"exists"`
	Active bool `json:"active"`
}

// TenantGate caches tenant gate lookups in a KV store with a short TTL.
// Every inbound message passes through it before any state mutation.
type TenantGate struct {
	source tenantSource
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewTenantGate creates a cached tenant gate.
func NewTenantGate(source tenantSource, kv KVStore, ttl time.Duration, logger *zap.Logger) *TenantGate {
	return &TenantGate{source: source, kv: kv, ttl: ttl, logger: logger}
}

// Lookup returns the tenant gate record, nil when the company is unknown.
func (g *TenantGate) Lookup(ctx context.Context, companyID string) (*models.Tenant, error) {
	key := "tenant:" + companyID

	if val, err := g.kv.Get(ctx, key); err == nil {
		var cached cachedTenant
		if err := json.Unmarshal([]byte(val), &cached); err == nil {
			if !cached.Exists {
				return nil, nil
			}
			return &models.Tenant{CompanyID: companyID, Active: cached.Active}, nil
		}
	} else if err != ErrCacheMiss {
		g.logger.Warn("Tenant cache read failed",
			zap.String("company_id", companyID),
			zap.Error(err),
		)
	}

	tenant, err := g.source.GetTenant(ctx, companyID)
	if err != nil {
		return nil, err
	}

	cached := cachedTenant{Exists: tenant != nil}
	if tenant != nil {
		cached.Active = tenant.Active
	}
	if data, err := json.Marshal(cached); err == nil {
		if err := g.kv.Set(ctx, key, string(data), g.ttl); err != nil {
			g.logger.Warn("Tenant cache write failed",
				zap.String("company_id", companyID),
				zap.Error(err),
			)
		}
	}

	return tenant, nil
}
