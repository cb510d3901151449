package apikey

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Filter describes search criteria combined with AND logic. Zero values are
// ignored.
type Filter struct {
	NameContains  string
	IsActive      *bool
	HasScope      string
	ExpiresBefore *time.Time
	Limit         int
	Offset        int
}

// Repository describes database operations available for API keys. Every
// call is individually atomic; the verification core never opens
// transactions across calls.
type Repository interface {
	Create(ctx context.Context, key *ApiKey) error
	GetByID(ctx context.Context, id string) (*ApiKey, error)
	GetByKeyID(ctx context.Context, keyID string) (*ApiKey, error)
	Update(ctx context.Context, key *ApiKey) error
	Touch(ctx context.Context, id string, usedAt time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]ApiKey, error)
	Search(ctx context.Context, f Filter) ([]ApiKey, error)
	Count(ctx context.Context, f Filter) (int64, error)
	// ExpireDue deactivates every active key whose expiration has passed and
	// returns how many rows changed. Used by the background sweeper.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, key *ApiKey) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		// Relies on TranslateError in the gorm config; a key_id collision must
		// surface as ErrDuplicateKey on every backend, not as a driver error.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id string) (*ApiKey, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var key ApiKey
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

// GetByKeyID is the hot path of every verification; key_id carries a unique
// index.
func (r *gormRepository) GetByKeyID(ctx context.Context, keyID string) (*ApiKey, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var key ApiKey
	err := r.db.WithContext(ctx).
		Where("key_id = ?", keyID).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (r *gormRepository) Update(ctx context.Context, key *ApiKey) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&ApiKey{}).
		Where("id = ?", key.ID).
		Updates(map[string]any{
			"name":        key.Name,
			"description": key.Description,
			"is_active":   key.IsActive,
			"scopes":      key.Scopes,
			"expires_at":  key.ExpiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (r *gormRepository) Touch(ctx context.Context, id string, usedAt time.Time) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&ApiKey{}).
		Where("id = ?", id).
		Update("last_used_at", usedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (r *gormRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&ApiKey{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (r *gormRepository) List(ctx context.Context, limit, offset int) ([]ApiKey, error) {
	return r.Search(ctx, Filter{Limit: limit, Offset: offset})
}

func (r *gormRepository) Search(ctx context.Context, f Filter) ([]ApiKey, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.applyFilter(r.db.WithContext(ctx).Model(&ApiKey{}), f)

	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	query = query.Order("created_at DESC").Order("id ASC")

	var keys []ApiKey
	if err := query.Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *gormRepository) Count(ctx context.Context, f Filter) (int64, error) {
	if r == nil || r.db == nil {
		return 0, gorm.ErrInvalidDB
	}

	var total int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&ApiKey{}), f)
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *gormRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).
		Model(&ApiKey{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Update("is_active", false)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *gormRepository) applyFilter(query *gorm.DB, f Filter) *gorm.DB {
	if f.NameContains != "" {
		query = query.Where("name LIKE ?", "%"+f.NameContains+"%")
	}
	if f.IsActive != nil {
		query = query.Where("is_active = ?", *f.IsActive)
	}
	if f.HasScope != "" {
		query = scopeFilter(query, f.HasScope)
	}
	if f.ExpiresBefore != nil {
		query = query.Where("expires_at IS NOT NULL AND expires_at < ?", *f.ExpiresBefore)
	}
	return query
}

// scopeFilter matches one element of the scopes column. Postgres uses the
// native array operator; mysql and sqlite store the pq text encoding
// ("{a,b,c}") and get an element-exact pattern match, which holds for plain
// scope tags (no commas, braces, quotes or whitespace).
func scopeFilter(query *gorm.DB, scope string) *gorm.DB {
	if query.Dialector.Name() == "postgres" {
		return query.Where("? = ANY(scopes)", scope)
	}
	return query.Where(
		"scopes = ? OR scopes LIKE ? OR scopes LIKE ? OR scopes LIKE ?",
		"{"+scope+"}",
		"{"+scope+",%",
		"%,"+scope+"}",
		"%,"+scope+",%",
	)
}
