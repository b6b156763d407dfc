package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"roundledger/cmd/internal/passphrase"
	"roundledger/gateway/middleware"
)

const secretEnv = "ROUNDLEDGER_AUTH_SECRET"

// secretSource is replaced in tests.
var secretSource = func() interface{ Get() (string, error) } {
	return passphrase.NewSource(secretEnv, "gateway auth secret")
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var caller, keyFile, issuer, audience, scopes string
	var ttl time.Duration
	fs.StringVar(&caller, "caller", "", "hex address the token speaks for")
	fs.StringVar(&keyFile, "key", "", "hex ECDSA key file whose address is the caller")
	fs.StringVar(&issuer, "issuer", "roundctl", "iss claim")
	fs.StringVar(&audience, "audience", "", "aud claim")
	fs.StringVar(&scopes, "scope", "", "comma separated scopes")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}

	addr, err := resolveCaller(caller, keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	secret, err := secretSource().Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	token, err := middleware.SignToken(middleware.TokenRequest{
		Secret:   secret,
		Caller:   addr,
		Issuer:   strings.TrimSpace(issuer),
		Audience: strings.TrimSpace(audience),
		Scopes:   splitScopes(scopes),
		TTL:      ttl,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func resolveCaller(caller, keyFile string) (common.Address, error) {
	caller = strings.TrimSpace(caller)
	keyFile = strings.TrimSpace(keyFile)
	switch {
	case caller != "" && keyFile != "":
		return common.Address{}, fmt.Errorf("use either --caller or --key")
	case keyFile != "":
		key, err := ethcrypto.LoadECDSA(keyFile)
		if err != nil {
			return common.Address{}, fmt.Errorf("load key: %w", err)
		}
		return ethcrypto.PubkeyToAddress(key.PublicKey), nil
	case common.IsHexAddress(caller):
		return common.HexToAddress(caller), nil
	case caller == "":
		return common.Address{}, fmt.Errorf("--caller or --key is required")
	default:
		return common.Address{}, fmt.Errorf("%q is not a hex address", caller)
	}
}

func splitScopes(raw string) []string {
	var out []string
	for _, scope := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
