package types

// EncryptedPayload contains age-encrypted data.
type EncryptedPayload struct {
	Version    int    `json:"v" yaml:"v"` // Payload format version
	Recipient  string `json:"r" yaml:"r"` // age public key hint
	Ciphertext string `json:"c" yaml:"c"` // base64 age ciphertext
}

// ExecutionSecrets holds decrypted values exported to sandboxed programs.
type ExecutionSecrets struct {
	Env map[string]string `json:"env"`
}
