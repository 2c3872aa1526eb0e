package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"savings-lockbox/internal/core/domain"

	"github.com/urfave/cli/v2"
)

const keyFileName = "owner.key"

var keygenCmd = cli.Command{
	Name:  "keygen",
	Usage: "generate a new ed25519 owner key",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing key file",
		},
	},
	Action: keygenAction,
}

func keygenAction(c *cli.Context) error {
	path := filepath.Join(c.String("datadir"), keyFileName)
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("key file %s already exists, use --force to replace it", path)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.String("datadir"), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}

	owner, err := ownerOf(priv)
	if err != nil {
		return err
	}
	if err := setState(c, map[string]string{keyKeyPath: path, keyOwner: owner.String()}); err != nil {
		return err
	}

	return printJSON(c, map[string]string{
		"owner":    owner.String(),
		"key_file": path,
	})
}

// loadKey reads the hex-encoded seed referenced by the state.
func loadKey(c *cli.Context) (ed25519.PrivateKey, error) {
	path, err := requireState(c, keyKeyPath, "run 'keygen' or 'config set key_path <file>'")
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key file %s does not hold a 32-byte hex seed", path)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func ownerOf(priv ed25519.PrivateKey) (domain.Address, error) {
	return domain.AddressFromBytes(priv.Public().(ed25519.PublicKey))
}
