package apikey

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Verifier is the read side consumed by transport middleware. Both *Service
// and *CachedService satisfy it.
type Verifier interface {
	Verify(ctx context.Context, presented string) (*ApiKey, error)
	VerifyWithScopes(ctx context.Context, presented string, requiredScopes []string) (*ApiKey, error)
}

// CachedService fronts a Service with a verification cache. A hit skips the
// hash comparison and the repository round trip entirely; the TTL is the
// documented staleness bound, so a deactivation done elsewhere may keep
// authenticating until the entry expires or is invalidated here.
type CachedService struct {
	*Service
	cache Cache
	group singleflight.Group
}

func NewCachedService(svc *Service, cache Cache) *CachedService {
	if cache == nil {
		cache = noopCache{}
	}
	return &CachedService{Service: svc, cache: cache}
}

func (c *CachedService) Verify(ctx context.Context, presented string) (*ApiKey, error) {
	return c.VerifyWithScopes(ctx, presented, nil)
}

func (c *CachedService) VerifyWithScopes(ctx context.Context, presented string, requiredScopes []string) (*ApiKey, error) {
	if strings.TrimSpace(presented) == "" {
		verifyRejects.WithLabelValues(rejectReasonLabel(ErrKeyNotProvided)).Inc()
		return nil, ErrKeyNotProvided
	}

	fp := Fingerprint(presented)
	if entity, ok := c.cache.Get(ctx, fp); ok {
		cacheHits.Inc()
		// Active/expiry/scope state is re-checked against the cached copy;
		// only the expensive hash comparison is skipped.
		now := c.Service.now()
		if !entity.IsActive {
			return nil, c.Service.reject(ctx, c.Service.logWith(ctx), ErrKeyInactive)
		}
		if entity.Expired(now) {
			return nil, c.Service.reject(ctx, c.Service.logWith(ctx), ErrKeyExpired)
		}
		if !entity.HasScopes(requiredScopes) {
			return nil, c.Service.reject(ctx, c.Service.logWith(ctx), ErrMissingScopes)
		}
		verifyAccepts.Inc()
		return entity, nil
	}
	cacheMiss.Inc()

	// Concurrent misses for the same presented string collapse into one
	// hash comparison.
	flightKey := fp + "|" + strings.Join(requiredScopes, ",")
	v, err, _ := c.group.Do(flightKey, func() (interface{}, error) {
		entity, err := c.Service.VerifyWithScopes(ctx, presented, requiredScopes)
		if err != nil {
			return nil, err
		}
		c.cache.Set(ctx, fp, entity)
		return entity, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ApiKey), nil
}

// Mutators delegate to the underlying Service and then evict every cached
// fingerprint of the touched entity, so state changes take effect without
// waiting out the TTL.

func (c *CachedService) Update(ctx context.Context, entity *ApiKey) (*ApiKey, error) {
	out, err := c.Service.Update(ctx, entity)
	if err != nil {
		return nil, err
	}
	c.cache.InvalidateEntity(ctx, entity.ID)
	return out, nil
}

func (c *CachedService) Activate(ctx context.Context, id string) (*ApiKey, error) {
	out, err := c.Service.Activate(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.InvalidateEntity(ctx, id)
	return out, nil
}

func (c *CachedService) Deactivate(ctx context.Context, id string) (*ApiKey, error) {
	out, err := c.Service.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.InvalidateEntity(ctx, id)
	return out, nil
}

func (c *CachedService) DeleteByID(ctx context.Context, id string) error {
	if err := c.Service.DeleteByID(ctx, id); err != nil {
		return err
	}
	c.cache.InvalidateEntity(ctx, id)
	return nil
}
