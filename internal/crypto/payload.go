package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/era-ai/era/pkg/types"
)

// PayloadVersion is the current encrypted payload format version.
const PayloadVersion = 1

// PayloadService encrypts JSON values to the daemon's identity and back.
type PayloadService struct {
	keyManager *KeyManager
}

// NewPayloadService creates a PayloadService backed by keyManager.
func NewPayloadService(keyManager *KeyManager) *PayloadService {
	return &PayloadService{keyManager: keyManager}
}

// EncryptJSON marshals data and encrypts it to the daemon's public key.
func (ps *PayloadService) EncryptJSON(data any) (*types.EncryptedPayload, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}

	ciphertext, err := EncryptToRecipient(plaintext, ps.keyManager.PublicKey())
	if err != nil {
		return nil, err
	}

	return &types.EncryptedPayload{
		Version:    PayloadVersion,
		Recipient:  ps.keyManager.PublicKeyHint(),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// DecryptJSON decrypts payload and unmarshals it into target.
func (ps *PayloadService) DecryptJSON(payload *types.EncryptedPayload, target any) error {
	if payload == nil {
		return fmt.Errorf("payload is nil")
	}
	if payload.Version != 0 && payload.Version != PayloadVersion {
		return fmt.Errorf("unsupported payload version %d", payload.Version)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	plaintext, err := DecryptWithIdentity(ciphertext, ps.keyManager.Identity())
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}

type sealedValue struct {
	Key string `json:"key"`
}

// SealValue encrypts a single secret such as an API key. The result is the
// base64 ciphertext stored in config fields ending in _encrypted.
func (ps *PayloadService) SealValue(value string) (string, error) {
	payload, err := ps.EncryptJSON(sealedValue{Key: value})
	if err != nil {
		return "", err
	}
	return payload.Ciphertext, nil
}

// OpenValue reverses SealValue.
func (ps *PayloadService) OpenValue(ciphertext string) (string, error) {
	var v sealedValue
	if err := ps.DecryptJSON(&types.EncryptedPayload{Version: PayloadVersion, Ciphertext: ciphertext}, &v); err != nil {
		return "", err
	}
	return v.Key, nil
}

// SealSecrets encrypts environment secrets for executors.env_encrypted.
func (ps *PayloadService) SealSecrets(secrets *types.ExecutionSecrets) (string, error) {
	payload, err := ps.EncryptJSON(secrets)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secrets: %w", err)
	}
	return payload.Ciphertext, nil
}

// OpenSecrets reverses SealSecrets.
func (ps *PayloadService) OpenSecrets(ciphertext string) (*types.ExecutionSecrets, error) {
	var secrets types.ExecutionSecrets
	if err := ps.DecryptJSON(&types.EncryptedPayload{Version: PayloadVersion, Ciphertext: ciphertext}, &secrets); err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	return &secrets, nil
}
