package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/commutedeck/commutedeck/internal/auth"
	"github.com/commutedeck/commutedeck/internal/config"
)

// issueToken signs an admin token with the configured key and prints it.
// It returns the process exit code.
func issueToken(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "ops", "token subject, recorded in admin request logs")
	role := fs.String("role", auth.RoleAdmin, "token role")
	expiry := fs.Duration("expiry", cfg.JWTExpiry, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWTSigningKey,
		Expiry:     *expiry,
	})
	token, expiresAt, err := svc.IssueToken(*subject, *role)
	if err != nil {
		fmt.Fprintf(stderr, "issuing token: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return 0
}
