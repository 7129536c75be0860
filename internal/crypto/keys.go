// Package crypto keeps provider keys and execution secrets encrypted at rest
// with age.
package crypto

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// KeyManager loads or creates the daemon's age identity.
type KeyManager struct {
	identityPath string
	identity     *age.X25519Identity
}

// NewKeyManager creates a KeyManager for the identity file at identityPath.
func NewKeyManager(identityPath string) *KeyManager {
	return &KeyManager{identityPath: identityPath}
}

// Initialize loads the identity file, generating it on first run.
func (km *KeyManager) Initialize() error {
	data, err := os.ReadFile(km.identityPath)
	switch {
	case err == nil:
		identity, err := ParseIdentity(string(data))
		if err != nil {
			return fmt.Errorf("failed to load identity %s: %w", km.identityPath, err)
		}
		km.identity = identity
		return nil
	case os.IsNotExist(err):
		return km.generateIdentity()
	default:
		return fmt.Errorf("failed to read identity file: %w", err)
	}
}

func (km *KeyManager) generateIdentity() error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(km.identityPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	content := fmt.Sprintf("# created: era\n# public key: %s\n%s\n",
		identity.Recipient().String(),
		identity.String(),
	)
	if err := os.WriteFile(km.identityPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}

	km.identity = identity
	return nil
}

// PublicKey returns the recipient string for the loaded identity.
func (km *KeyManager) PublicKey() string {
	if km.identity == nil {
		return ""
	}
	return km.identity.Recipient().String()
}

// PublicKeyHint returns a short prefix of the public key.
func (km *KeyManager) PublicKeyHint() string {
	pk := km.PublicKey()
	if len(pk) > 12 {
		return pk[:12] + "..."
	}
	return pk
}

// Identity returns the loaded identity, or nil before Initialize.
func (km *KeyManager) Identity() *age.X25519Identity {
	return km.identity
}

// ParseIdentity reads the first non-comment line of an identity file.
func ParseIdentity(data string) (*age.X25519Identity, error) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity: %w", err)
		}
		return identity, nil
	}
	return nil, fmt.Errorf("no identity found")
}
