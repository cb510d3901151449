package apikey

import (
	"context"
	"fmt"
	mathrand "math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Service orchestrates codec, hasher and repository to issue and verify API
// keys. It holds no mutable state of its own; concurrent verification calls
// are independent and two calls for the same key may both touch
// last_used_at (repository last write wins).
type Service struct {
	repo   Repository
	hasher Hasher
	codec  *Codec

	rejectDelayMin time.Duration
	rejectDelayMax time.Duration

	// dummyHash is compared against when no stored hash exists, so a lookup
	// miss costs the same wall-clock time as a real mismatch.
	dummyHash string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewService wires a verification core. rejectDelayMin/Max bound the
// jittered delay paid by every reject path (except empty input).
func NewService(repo Repository, hasher Hasher, codec *Codec, rejectDelayMin, rejectDelayMax time.Duration) (*Service, error) {
	dummySecret, err := GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("apikey service: %w", err)
	}
	dummyHash, err := hasher.Hash(dummySecret)
	if err != nil {
		return nil, fmt.Errorf("apikey service: %w", err)
	}

	return &Service{
		repo:           repo,
		hasher:         hasher,
		codec:          codec,
		rejectDelayMin: rejectDelayMin,
		rejectDelayMax: rejectDelayMax,
		dummyHash:      dummyHash,
		now:            time.Now,
		sleep:          sleepWithContext,
	}, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// CreateInput carries creation parameters. KeyID and Secret are optional
// overrides used by imports and tests; when empty they are generated.
type CreateInput struct {
	Name        string
	Description string
	IsActive    bool
	Scopes      []string
	ExpiresAt   *time.Time
	KeyID       string
	Secret      string
}

// Create issues a new credential and returns the stored entity together with
// the one-time plaintext key string. The plaintext is never reconstructable
// afterwards; a caller who loses it must revoke and reissue.
func (s *Service) Create(ctx context.Context, in CreateInput) (*ApiKey, string, error) {
	zapLog := s.logWith(ctx)

	now := s.now()
	if in.ExpiresAt != nil && in.ExpiresAt.Before(now) {
		return nil, "", fmt.Errorf("%w: expiration date must be in the future", ErrInvalidInput)
	}

	keyID := in.KeyID
	if keyID == "" {
		keyID = GenerateKeyID()
	}
	secret := in.Secret
	if secret == "" {
		var err error
		secret, err = GenerateSecret()
		if err != nil {
			return nil, "", err
		}
	}
	if strings.Contains(keyID, s.codec.separator) || strings.Contains(secret, s.codec.separator) {
		return nil, "", fmt.Errorf("%w: key material must not contain the separator", ErrInvalidInput)
	}

	keyHash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, "", err
	}

	entity := &ApiKey{
		ID:             uuid.NewString(),
		KeyID:          keyID,
		KeyHash:        keyHash,
		Name:           in.Name,
		Description:    in.Description,
		IsActive:       in.IsActive,
		Scopes:         in.Scopes,
		ExpiresAt:      in.ExpiresAt,
		CreatedAt:      now,
		KeySecretFirst: secret[:4],
		KeySecretLast:  secret[len(secret)-4:],
	}

	if err := s.repo.Create(ctx, entity); err != nil {
		zapLog.Error("failed to create api key", zap.Error(err))
		return nil, "", err
	}

	zapLog.Info("api key created",
		zap.String("id", entity.ID),
		zap.String("key_id", entity.KeyID),
	)

	return entity, s.codec.Format(keyID, secret), nil
}

// GetByID returns the entity or ErrKeyNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*ApiKey, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrKeyNotProvided
	}
	return s.repo.GetByID(ctx, id)
}

// GetByKeyID returns the entity behind a public lookup token.
func (s *Service) GetByKeyID(ctx context.Context, keyID string) (*ApiKey, error) {
	if strings.TrimSpace(keyID) == "" {
		return nil, ErrKeyNotProvided
	}
	return s.repo.GetByKeyID(ctx, keyID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]ApiKey, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Search(ctx context.Context, f Filter) ([]ApiKey, error) {
	return s.repo.Search(ctx, f)
}

func (s *Service) Count(ctx context.Context, f Filter) (int64, error) {
	return s.repo.Count(ctx, f)
}

// Update persists metadata changes (name, description, active flag, scopes,
// expiry). Secret material is immutable; it is never part of an update.
func (s *Service) Update(ctx context.Context, entity *ApiKey) (*ApiKey, error) {
	if err := s.repo.Update(ctx, entity); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, entity.ID)
}

// Activate re-enables a key. Idempotent.
func (s *Service) Activate(ctx context.Context, id string) (*ApiKey, error) {
	return s.setActive(ctx, id, true)
}

// Deactivate blocks a key from authenticating. Idempotent.
func (s *Service) Deactivate(ctx context.Context, id string) (*ApiKey, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (*ApiKey, error) {
	entity, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.IsActive == active {
		return entity, nil
	}
	entity.IsActive = active
	return s.Update(ctx, entity)
}

// DeleteByID removes the credential permanently.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrKeyNotProvided
	}
	return s.repo.Delete(ctx, id)
}

// ExpireDue deactivates keys whose expiration has passed. Called by the
// background sweeper.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	return s.repo.ExpireDue(ctx, s.now())
}

// Verify decides ACCEPT or REJECT for a presented key string and refreshes
// usage metadata on ACCEPT.
func (s *Service) Verify(ctx context.Context, presented string) (*ApiKey, error) {
	return s.VerifyWithScopes(ctx, presented, nil)
}

// VerifyWithScopes additionally requires every scope in requiredScopes to be
// granted. Scope membership is checked only after the secret matched, so a
// missing-scope rejection never leaks anything to a caller without the
// secret.
//
// Ordering note: the hash comparison runs before the active/expiry checks.
// A forbidden outcome (inactive, expired, missing scopes) is therefore only
// reachable with a correct secret, and a caller probing key_ids learns
// nothing from it.
func (s *Service) VerifyWithScopes(ctx context.Context, presented string, requiredScopes []string) (*ApiKey, error) {
	zapLog := s.logWith(ctx)

	// Empty input is rejected before any work; structural, no delay.
	if strings.TrimSpace(presented) == "" {
		verifyRejects.WithLabelValues(rejectReasonLabel(ErrKeyNotProvided)).Inc()
		return nil, ErrKeyNotProvided
	}

	keyID, secret, err := s.codec.Parse(presented)
	if err != nil {
		return nil, s.reject(ctx, zapLog, err)
	}

	entity, err := s.repo.GetByKeyID(ctx, keyID)
	if err != nil {
		if err == ErrKeyNotFound {
			// Burn a comparison against the dummy hash so "unknown key_id"
			// and "known key_id, wrong secret" cost the same.
			s.hasher.Verify(s.dummyHash, secret)
			return nil, s.reject(ctx, zapLog, ErrKeyNotFound)
		}
		zapLog.Error("api key lookup failed", zap.Error(err))
		return nil, err
	}

	if entity.KeyHash == "" {
		// Projection without a hash can never authenticate.
		s.hasher.Verify(s.dummyHash, secret)
		return nil, s.reject(ctx, zapLog, ErrSecretMismatch)
	}

	if !s.hasher.Verify(entity.KeyHash, secret) {
		return nil, s.reject(ctx, zapLog, ErrSecretMismatch)
	}

	now := s.now()
	if !entity.IsActive {
		return nil, s.reject(ctx, zapLog, ErrKeyInactive)
	}
	if entity.Expired(now) {
		return nil, s.reject(ctx, zapLog, ErrKeyExpired)
	}
	if !entity.HasScopes(requiredScopes) {
		return nil, s.reject(ctx, zapLog, ErrMissingScopes)
	}

	// Touch is fire-and-forget with respect to the result: ACCEPT stands
	// even when the usage-timestamp write fails.
	entity.Touch(now)
	if err := s.repo.Touch(ctx, entity.ID, now); err != nil {
		zapLog.Warn("failed to touch api key",
			zap.String("id", entity.ID),
			zap.Error(err),
		)
	}

	verifyAccepts.Inc()
	return entity, nil
}

// reject is the single REJECT exit path. Centralizing the jittered delay
// here keeps the timing profile uniform across reject reasons.
func (s *Service) reject(ctx context.Context, zapLog *zap.Logger, reason error) error {
	verifyRejects.WithLabelValues(rejectReasonLabel(reason)).Inc()
	zapLog.Debug("api key rejected", zap.String("reason", rejectReasonLabel(reason)))

	if d := s.jitter(); d > 0 {
		s.sleep(ctx, d)
	}
	return reason
}

// jitter draws a delay uniformly from [rejectDelayMin, rejectDelayMax).
func (s *Service) jitter() time.Duration {
	min, max := s.rejectDelayMin, s.rejectDelayMax
	if max <= min {
		return min
	}
	return min + mathrand.N(max-min)
}

func (s *Service) logWith(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return zap.L()
	}
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}
