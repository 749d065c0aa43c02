// This command is only used for local testing: it creates the cleartext Tink
// keyset referenced by CACHE_ENCRYPTION_KEYSET_FILE so that a local bridge
// can run with an encrypted Valkey cache without AWS access.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sethvargo/go-envconfig"
	"github.com/youthweb/youthweb-bridge/internal/cache/encryption"
)

type Config struct {
	KeysetPath string `env:"UTIL_KEYSET_PATH, default=.development/keys/cache-keyset.json"`
	Overwrite  bool   `env:"UTIL_KEYSET_OVERWRITE, default=false"`
}

func main() {
	cfg := Config{}
	err := envconfig.Process(context.Background(), &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	if !cfg.Overwrite {
		if _, err := os.Stat(cfg.KeysetPath); err == nil {
			fmt.Fprintf(os.Stderr, "keyset %s already exists; set UTIL_KEYSET_OVERWRITE=true to replace it\n", cfg.KeysetPath)
			os.Exit(1)
		}
	}

	err = encryption.WriteCleartextKeyset(cfg.KeysetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating keyset: %v\n", err)
		os.Exit(1)
	}

	// confirm the keyset loads the way the bridge will load it
	_, err = encryption.NewAEADFromFile(cfg.KeysetPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error verifying keyset: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s", cfg.KeysetPath)
}
