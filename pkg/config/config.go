package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Otel struct {
		Enable   bool   `mapstructure:"ENABLE"`
		Endpoint string `mapstructure:"ENDPOINT"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	ApiKey ApiKeyConfig `mapstructure:"APIKEY"`
}

// ApiKeyConfig drives the credential issuance and verification pipeline.
//
// Pepper is an application-wide secret mixed into every key hash. Rotating
// it invalidates every previously issued key; treat a rotation as a
// revoke-everything operational event, not a routine config change.
type ApiKeyConfig struct {
	Prefix         string        `mapstructure:"PREFIX"`
	Separator      string        `mapstructure:"SEPARATOR"`
	Hasher         string        `mapstructure:"HASHER"` // "argon2id" (default) or "bcrypt"
	Pepper         string        `mapstructure:"PEPPER"`
	BcryptCost     int           `mapstructure:"BCRYPT_COST"`
	CacheBackend   string        `mapstructure:"CACHE_BACKEND"` // "memory", "redis" or "none"
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`
	RejectDelayMin time.Duration `mapstructure:"REJECT_DELAY_MIN"`
	RejectDelayMax time.Duration `mapstructure:"REJECT_DELAY_MAX"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		// START - Vault
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		if v := get("postgres_user"); v != "" {
			cfg.Database.User = v
		}
		if v := get("postgres_password"); v != "" {
			cfg.Database.Password = v
		}
		if v := get("redis_password"); v != "" {
			cfg.Redis.Password = v
		}
		if v := get("apikey_pepper"); v != "" {
			cfg.ApiKey.Pepper = v
		}
		// END - Vault
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "keywarden")

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")

	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 30*time.Second)

	v.SetDefault("OTEL.ENDPOINT", "127.0.0.1:4318")
	v.SetDefault("OTEL.INSECURE", true)

	v.SetDefault("APIKEY.PREFIX", "ak")
	v.SetDefault("APIKEY.SEPARATOR", "-")
	v.SetDefault("APIKEY.HASHER", "argon2id")
	v.SetDefault("APIKEY.BCRYPT_COST", 12)
	v.SetDefault("APIKEY.CACHE_BACKEND", "memory")
	v.SetDefault("APIKEY.CACHE_TTL", 5*time.Minute)
	v.SetDefault("APIKEY.REJECT_DELAY_MIN", 200*time.Millisecond)
	v.SetDefault("APIKEY.REJECT_DELAY_MAX", 400*time.Millisecond)
	v.SetDefault("APIKEY.SWEEP_INTERVAL", time.Hour)
}
