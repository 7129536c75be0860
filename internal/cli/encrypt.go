package cli

import (
	"fmt"
	"io"

	"github.com/era-ai/era/internal/config"
	"github.com/era-ai/era/internal/crypto"
)

// runEncrypt seals a value to the configured identity so it can be pasted
// into api_key_encrypted or token_encrypted.
func runEncrypt(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("encrypt", stderr)
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		fs.Usage()
		return ExitUsage
	}

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}
	keys := crypto.NewKeyManager(cfg.Crypto.IdentityPath)
	if err := keys.Initialize(); err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}

	sealed, err := crypto.NewPayloadService(keys).SealValue(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "era: %v\n", err)
		return ExitError
	}
	fmt.Fprintln(stdout, sealed)
	return ExitOK
}
