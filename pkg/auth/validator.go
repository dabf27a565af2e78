// Package auth validates request tokens against the cluster secrets
// service.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

// ErrUnauthorized wraps every validation failure: unreachable secrets
// service, absent secret and token mismatch alike. Callers decide what
// to do with it; they get no detail a probing client could use.
var ErrUnauthorized = errors.New("unauthorized")

// Validator checks the token a client presented.
type Validator interface {
	Validate(ctx context.Context, callerToken string) error
}

// VaultConfig carries what the daemon needs to reach Vault.
type VaultConfig struct {
	// Address of the Vault server, e.g. http://127.0.0.1:8200.
	Address string

	// TokenFile is the vault-agent style sink file holding the connect
	// token. Empty means the token comes from the environment.
	TokenFile string

	// Key is the secret name under secret/ whose "value" field holds
	// the expected request token.
	Key string
}

// VaultValidator validates caller tokens against a KV secret.
type VaultValidator struct {
	client *vaultapi.Client
	key    string
}

// NewVaultValidator connects the validator. The secret itself is read
// per request so rotations on the Vault side apply immediately.
func NewVaultValidator(cfg VaultConfig) (*VaultValidator, error) {
	vaultCfg := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		vaultCfg.Address = cfg.Address
	}
	client, err := vaultapi.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %v", err)
	}

	v := &VaultValidator{client: client, key: cfg.Key}
	if cfg.TokenFile != "" {
		if err := v.loadToken(cfg.TokenFile); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Validate succeeds only when the caller token equals the stored
// secret. The comparison is constant-time.
func (v *VaultValidator) Validate(ctx context.Context, callerToken string) error {
	secret, err := v.client.Logical().ReadWithContext(ctx, "secret/"+v.key)
	if err != nil {
		return fmt.Errorf("%w: read secret: %v", ErrUnauthorized, err)
	}
	if secret == nil {
		return fmt.Errorf("%w: secret %q not found", ErrUnauthorized, v.key)
	}
	value, ok := secret.Data["value"].(string)
	if !ok {
		return fmt.Errorf("%w: secret %q carries no value field", ErrUnauthorized, v.key)
	}
	if subtle.ConstantTimeCompare([]byte(value), []byte(callerToken)) != 1 {
		return fmt.Errorf("%w: token mismatch", ErrUnauthorized)
	}
	return nil
}

func (v *VaultValidator) loadToken(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read vault token file: %v", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return fmt.Errorf("vault token file %s is empty", path)
	}
	v.client.SetToken(token)
	return nil
}
