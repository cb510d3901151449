package apikey

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryRepository is a mutex-guarded in-process Repository. It backs tests
// and the seed command; production traffic goes through the gorm
// implementation.
type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*ApiKey
	byKeyID map[string]string // key_id -> id
}

// NewMemoryRepository returns an empty in-memory Repository implementation.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:    make(map[string]*ApiKey),
		byKeyID: make(map[string]string),
	}
}

func clone(k *ApiKey) *ApiKey {
	c := *k
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		c.ExpiresAt = &t
	}
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		c.LastUsedAt = &t
	}
	c.Scopes = append(c.Scopes[:0:0], k.Scopes...)
	return &c
}

func (r *memoryRepository) Create(ctx context.Context, key *ApiKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[key.ID]; ok {
		return ErrDuplicateKey
	}
	if _, ok := r.byKeyID[key.KeyID]; ok {
		return ErrDuplicateKey
	}

	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}

	r.byID[key.ID] = clone(key)
	r.byKeyID[key.KeyID] = key.ID
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id string) (*ApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byID[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return clone(key), nil
}

func (r *memoryRepository) GetByKeyID(ctx context.Context, keyID string) (*ApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKeyID[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *memoryRepository) Update(ctx context.Context, key *ApiKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[key.ID]
	if !ok {
		return ErrKeyNotFound
	}

	current.Name = key.Name
	current.Description = key.Description
	current.IsActive = key.IsActive
	current.Scopes = append(current.Scopes[:0:0], key.Scopes...)
	if key.ExpiresAt != nil {
		t := *key.ExpiresAt
		current.ExpiresAt = &t
	} else {
		current.ExpiresAt = nil
	}
	return nil
}

func (r *memoryRepository) Touch(ctx context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	key.Touch(usedAt)
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	delete(r.byKeyID, key.KeyID)
	delete(r.byID, id)
	return nil
}

func (r *memoryRepository) List(ctx context.Context, limit, offset int) ([]ApiKey, error) {
	return r.Search(ctx, Filter{Limit: limit, Offset: offset})
}

func (r *memoryRepository) Search(ctx context.Context, f Filter) ([]ApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.match(f)

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []ApiKey{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}

	out := make([]ApiKey, 0, len(matched))
	for _, k := range matched {
		out = append(out, *clone(k))
	}
	return out, nil
}

func (r *memoryRepository) Count(ctx context.Context, f Filter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.match(f))), nil
}

func (r *memoryRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, k := range r.byID {
		if k.IsActive && k.Expired(now) {
			k.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) match(f Filter) []*ApiKey {
	matched := make([]*ApiKey, 0, len(r.byID))
	for _, k := range r.byID {
		if f.NameContains != "" && !strings.Contains(k.Name, f.NameContains) {
			continue
		}
		if f.IsActive != nil && k.IsActive != *f.IsActive {
			continue
		}
		if f.HasScope != "" && !k.HasScopes([]string{f.HasScope}) {
			continue
		}
		if f.ExpiresBefore != nil && (k.ExpiresAt == nil || !k.ExpiresAt.Before(*f.ExpiresBefore)) {
			continue
		}
		matched = append(matched, k)
	}

	// Newest first, id as tie-breaker, mirroring the SQL ordering.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}
