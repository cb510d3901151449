package apikey

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"keywarden/pkg/config"
)

var Module = fx.Module("apikey.service",
	fx.Provide(
		NewCodecFromConfig,
		NewHasherFromConfig,
		NewRepository,
		NewCacheFromConfig,
		NewServiceFromConfig,
		NewCachedService,
		provideVerifier,
	),
)

func NewCodecFromConfig(cfg *config.Config) (*Codec, error) {
	return NewCodec(cfg.ApiKey.Prefix, cfg.ApiKey.Separator)
}

func NewHasherFromConfig(cfg *config.Config) (Hasher, error) {
	switch cfg.ApiKey.Hasher {
	case "", "argon2id":
		return NewArgon2Hasher(cfg.ApiKey.Pepper), nil
	case "bcrypt":
		return NewBcryptHasher(cfg.ApiKey.Pepper, cfg.ApiKey.BcryptCost)
	default:
		return nil, fmt.Errorf("apikey: unknown hasher %q", cfg.ApiKey.Hasher)
	}
}

type cacheParams struct {
	fx.In

	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewCacheFromConfig(p cacheParams) (Cache, error) {
	switch p.Config.ApiKey.CacheBackend {
	case "memory":
		return NewMemoryCache(p.Config.ApiKey.CacheTTL), nil
	case "redis":
		if p.Redis == nil {
			return nil, fmt.Errorf("apikey: cache backend is redis but no redis client is wired")
		}
		return NewRedisCache(p.Redis, p.Config.ApiKey.CacheTTL), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("apikey: unknown cache backend %q", p.Config.ApiKey.CacheBackend)
	}
}

func NewServiceFromConfig(cfg *config.Config, repo Repository, hasher Hasher, codec *Codec) (*Service, error) {
	return NewService(repo, hasher, codec, cfg.ApiKey.RejectDelayMin, cfg.ApiKey.RejectDelayMax)
}

func provideVerifier(svc *Service, cached *CachedService, cache Cache) Verifier {
	if cache == nil {
		zap.L().Info("api key verification cache disabled")
		return svc
	}
	return cached
}
