// Command token issues a dashboard JWT signed with JWT_SECRET.
//
//	go run ./cmd/token --user-id 7 --role supervisor
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"bip-service/config"
	"bip-service/internal/auth"
)

func main() {
	cfg := config.Load()
	os.Exit(run(os.Args[1:], cfg.Auth, os.Stdout, os.Stderr))
}

func run(args []string, authCfg config.AuthConfig, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userID := fs.Int64("user-id", 0, "Required: id of the dashboard user")
	role := fs.String("role", "operator", "Role claim")
	ttl := fs.Duration("ttl", authCfg.JWTTTL, "Token lifetime (defaults to JWT_TTL_HOURS)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *userID <= 0 {
		fmt.Fprintln(stderr, "--user-id is required")
		return 1
	}
	if *ttl <= 0 {
		fmt.Fprintln(stderr, "--ttl must be positive")
		return 1
	}
	if strings.TrimSpace(authCfg.JWTSecret) == "" {
		fmt.Fprintln(stderr, "JWT_SECRET is not set")
		return 1
	}

	token, err := auth.GenerateToken(*userID, strings.TrimSpace(*role), []byte(authCfg.JWTSecret), *ttl)
	if err != nil {
		fmt.Fprintf(stderr, "failed to sign token: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "token for user %d expires at %s\n", *userID, time.Now().Add(*ttl).Format(time.RFC3339))
	return 0
}
