// ABOUTME: Config file commands
// ABOUTME: Writes a starter config with a generated state secret and shows where config is read from
package cli

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"

	"github.com/harperreed/dayplan/config"
)

// ConfigCommand routes the config subcommands. It runs before the app is
// wired so it works on a fresh machine.
func ConfigCommand(cfgPath string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("config requires a subcommand: init or path")
	}

	switch args[0] {
	case "init":
		return configInit(cfgPath, args[1:])
	case "path":
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if cfg.Path() == "" {
			fmt.Printf("No config file found; using defaults (write one with 'dayplan config init' to %s)\n", config.DefaultPath())
			return nil
		}
		fmt.Println(cfg.Path())
		return nil
	default:
		return fmt.Errorf("unknown config command: %s", args[0])
	}
}

func configInit(cfgPath string, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path := cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	if config.Exists(path) && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	secret, err := newStateSecret()
	if err != nil {
		return err
	}
	cfg.Server.StateSecret = secret

	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("✓ Wrote %s\n", path)
	fmt.Println("Set google.client_id and google.client_secret (or GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET), then run 'dayplan connect'.")
	return nil
}

func newStateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
