package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"thurman/cmd/internal/passphrase"
	"thurman/crypto"
	"thurman/services/poold/config"
	"thurman/services/poold/middleware"
)

const (
	keygenCommand  = "keygen"
	addressCommand = "address"
	tokenCommand   = "token"
	genesisCommand = "genesis-check"

	defaultSecretEnv = "POOLD_JWT_SECRET"
	defaultIssuer    = "poold"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:], os.Stdout)
	case addressCommand:
		err = runAddress(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout, nil)
	case genesisCommand:
		err = runGenesisCheck(os.Args[2:], os.Stdout)
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: poolctl <command> [flags]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintf(w, "  %-14s generate a secp256k1 key and print its address\n", keygenCommand)
	fmt.Fprintf(w, "  %-14s derive the address of a hex private key\n", addressCommand)
	fmt.Fprintf(w, "  %-14s issue an HS256 bearer token for poold\n", tokenCommand)
	fmt.Fprintf(w, "  %-14s validate a genesis file and print a summary\n", genesisCommand)
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keyOut := fs.String("out", "", "Write the hex private key to this file instead of stdout")
	force := fs.Bool("force", false, "Overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	encoded := hex.EncodeToString(key.Bytes())
	addr := key.PubKey().Address()
	if *keyOut == "" {
		fmt.Fprintf(out, "address: %s\nprivate_key: %s\n", addr, encoded)
		return nil
	}
	if !*force {
		if _, err := os.Stat(*keyOut); err == nil {
			return fmt.Errorf("key file %s already exists (use --force to overwrite)", *keyOut)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.WriteFile(*keyOut, []byte(encoded+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	fmt.Fprintf(out, "address: %s\nkey_file: %s\n", addr, *keyOut)
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCommand, flag.ContinueOnError)
	keyHex := fs.String("key", "", "Hex encoded private key")
	keyFile := fs.String("key-file", "", "File holding the hex encoded private key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw := strings.TrimSpace(*keyHex)
	if *keyFile != "" {
		data, err := os.ReadFile(*keyFile)
		if err != nil {
			return fmt.Errorf("read key file: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return fmt.Errorf("--key or --key-file required")
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(decoded)
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}
	fmt.Fprintln(out, key.PubKey().Address().String())
	return nil
}

// runToken issues a bearer token whose subject is the caller address. The
// secret comes from src, or from the environment and terminal when nil.
func runToken(args []string, out io.Writer, src *passphrase.Source) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	subject := fs.String("subject", "", "Caller address the token authenticates")
	issuer := fs.String("issuer", defaultIssuer, "Token issuer; must match poold auth.issuer")
	audience := fs.String("audience", "", "Token audience; must match poold auth.audience")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable holding the HMAC secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.DecodeAddress(*subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if *ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	if src == nil {
		src = passphrase.NewSource(*secretEnv, "poold HMAC secret")
	}
	secret, err := src.Get()
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(secret)) < 32 {
		return fmt.Errorf("hmac secret must be at least 32 bytes")
	}
	token, err := middleware.IssueToken(secret, addr, *issuer, *audience, *ttl, time.Now())
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

func runGenesisCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(genesisCommand, flag.ContinueOnError)
	path := fs.String("file", "genesis.toml", "Genesis file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	g, err := config.LoadGenesis(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "admin: %s\n", g.Admin)
	fmt.Fprintf(out, "operators: %d\n", len(g.Operators))
	fmt.Fprintf(out, "asset: %s (%d decimals)\n", g.Asset.Symbol, g.Asset.Decimals)
	fmt.Fprintf(out, "registries: %d\n", len(g.Registry))
	for i, p := range g.Pool {
		fee, _ := config.ParseFraction(p.MarginFee)
		fmt.Fprintf(out, "pool %d: vault=%s registry=%s margin_fee=%s\n", i, p.Vault, p.Registry, fee)
	}
	fmt.Fprintf(out, "balances: %d\n", len(g.Balance))
	if len(g.Paused) > 0 {
		fmt.Fprintf(out, "paused: %s\n", strings.Join(g.Paused, ","))
	}
	return nil
}
