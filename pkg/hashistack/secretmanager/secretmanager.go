package secretmanager

import (
	"os"

	"github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault builds a Vault client from the standard VAULT_* environment
// variables. When VAULT_ADDR is unset the provider yields a nil client and
// the config secret overlay stays disabled.
func ProvideVault() (*vault.Client, error) {
	if os.Getenv("VAULT_ADDR") == "" {
		zap.L().Info("[Vault] VAULT_ADDR not set, secret overlay disabled")
		return nil, nil
	}

	client, err := vault.New(vault.WithEnvironment())
	if err != nil {
		return nil, err
	}

	return client, nil
}
