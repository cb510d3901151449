package apikey

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"keywarden/services/testutil"
)

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	return NewRepository(testutil.NewTestDB(t, &ApiKey{}))
}

func TestGormRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedKey(t, repo, "id-1", "key0000000000001", "one", true, time.Now())

	byID, err := repo.GetByID(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, "one", byID.Name)
	require.Equal(t, "hashed:id-1", byID.KeyHash)

	byKeyID, err := repo.GetByKeyID(ctx, "key0000000000001")
	require.NoError(t, err)
	require.Equal(t, "id-1", byKeyID.ID)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
	_, err = repo.GetByKeyID(ctx, "missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestGormRepository_KeyIDUniqueIndex(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedKey(t, repo, "id-1", "key0000000000001", "one", true, time.Now())

	err := repo.Create(ctx, &ApiKey{ID: "id-2", KeyID: "key0000000000001"})
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestGormRepository_UpdateNeverTouchesSecretMaterial(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedKey(t, repo, "id-1", "key0000000000001", "one", true, time.Now())

	err := repo.Update(ctx, &ApiKey{
		ID:      "id-1",
		Name:    "renamed",
		KeyHash: "attacker-controlled",
	})
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, "renamed", stored.Name)
	require.Equal(t, "hashed:id-1", stored.KeyHash)

	require.ErrorIs(t, repo.Update(ctx, &ApiKey{ID: "missing"}), ErrKeyNotFound)
}

func TestGormRepository_Touch(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedKey(t, repo, "id-1", "key0000000000001", "one", true, time.Now())

	usedAt := time.Now()
	require.NoError(t, repo.Touch(ctx, "id-1", usedAt))

	stored, err := repo.GetByID(ctx, "id-1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
	require.WithinDuration(t, usedAt, *stored.LastUsedAt, time.Second)

	require.ErrorIs(t, repo.Touch(ctx, "missing", usedAt), ErrKeyNotFound)
}

func TestGormRepository_Delete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedKey(t, repo, "id-1", "key0000000000001", "one", true, time.Now())

	require.NoError(t, repo.Delete(ctx, "id-1"))
	require.ErrorIs(t, repo.Delete(ctx, "id-1"), ErrKeyNotFound)
}

func TestGormRepository_SearchAndCount(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Now()

	seedKey(t, repo, "id-1", "k1", "billing-reader", true, base.Add(-3*time.Hour))
	seedKey(t, repo, "id-2", "k2", "billing-writer", false, base.Add(-2*time.Hour))
	seedKey(t, repo, "id-3", "k3", "metrics", true, base.Add(-time.Hour))

	keys, err := repo.Search(ctx, Filter{NameContains: "billing"})
	require.NoError(t, err)
	require.Len(t, keys, 2)

	active := true
	keys, err = repo.Search(ctx, Filter{NameContains: "billing", IsActive: &active})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "id-1", keys[0].ID)

	total, err := repo.Count(ctx, Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	inactive := false
	total, err = repo.Count(ctx, Filter{IsActive: &inactive})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

func TestGormRepository_SearchHasScope(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &ApiKey{ID: "id-1", KeyID: "k1", Name: "reader", IsActive: true, Scopes: pq.StringArray{"read"}}))
	require.NoError(t, repo.Create(ctx, &ApiKey{ID: "id-2", KeyID: "k2", Name: "writer", IsActive: true, Scopes: pq.StringArray{"write", "read", "admin"}}))
	require.NoError(t, repo.Create(ctx, &ApiKey{ID: "id-3", KeyID: "k3", Name: "exporter", IsActive: true, Scopes: pq.StringArray{"read:all"}}))
	require.NoError(t, repo.Create(ctx, &ApiKey{ID: "id-4", KeyID: "k4", Name: "unscoped", IsActive: true}))

	keys, err := repo.Search(ctx, Filter{HasScope: "read"})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		require.Contains(t, []string{"id-1", "id-2"}, k.ID)
	}

	// "read" must not match the distinct scope "read:all".
	keys, err = repo.Search(ctx, Filter{HasScope: "read:all"})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "id-3", keys[0].ID)

	total, err := repo.Count(ctx, Filter{HasScope: "admin"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	keys, err = repo.Search(ctx, Filter{HasScope: "missing"})
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestGormRepository_SearchExpiresBefore(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now()

	soon := now.Add(time.Hour)
	later := now.Add(48 * time.Hour)

	expiring := seedKey(t, repo, "id-1", "k1", "expiring", true, now.Add(-2*time.Hour))
	expiring.ExpiresAt = &soon
	require.NoError(t, repo.Update(ctx, expiring))

	longLived := seedKey(t, repo, "id-2", "k2", "long-lived", true, now.Add(-time.Hour))
	longLived.ExpiresAt = &later
	require.NoError(t, repo.Update(ctx, longLived))

	seedKey(t, repo, "id-3", "k3", "forever", true, now)

	cutoff := now.Add(24 * time.Hour)
	keys, err := repo.Search(ctx, Filter{ExpiresBefore: &cutoff})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "id-1", keys[0].ID)
}

func TestGormRepository_ListOrderingAndPagination(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Now()

	seedKey(t, repo, "id-1", "k1", "oldest", true, base.Add(-3*time.Hour))
	seedKey(t, repo, "id-2", "k2", "middle", true, base.Add(-2*time.Hour))
	seedKey(t, repo, "id-3", "k3", "newest", true, base.Add(-time.Hour))

	keys, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	require.Equal(t, "id-3", keys[0].ID)
	require.Equal(t, "id-1", keys[2].ID)

	keys, err = repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, "id-1", keys[0].ID)
}

func TestGormRepository_ExpireDue(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := seedKey(t, repo, "id-1", "k1", "expired", true, now.Add(-2*time.Hour))
	expired.ExpiresAt = &past
	require.NoError(t, repo.Update(ctx, expired))

	living := seedKey(t, repo, "id-2", "k2", "living", true, now.Add(-time.Hour))
	living.ExpiresAt = &future
	require.NoError(t, repo.Update(ctx, living))

	n, err := repo.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	stored, err := repo.GetByID(ctx, "id-1")
	require.NoError(t, err)
	require.False(t, stored.IsActive)

	kept, err := repo.GetByID(ctx, "id-2")
	require.NoError(t, err)
	require.True(t, kept.IsActive)
}
