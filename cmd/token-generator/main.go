// Command token-generator mints access tokens for clients of the Easel
// API. The signing secret is read from EASEL_AUTH_JWT_SECRET so it never
// appears in shell history.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/easelapp/easel-api/internal/config"
	"github.com/easelapp/easel-api/internal/service/auth"
)

func main() {
	clientIDFlag := flag.String("client-id", "", "client UUID to embed in the token (default: random)")
	lifetimeFlag := flag.Int("lifetime-hours", 24, "token lifetime in hours")
	flag.Parse()

	secret := os.Getenv("EASEL_AUTH_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "EASEL_AUTH_JWT_SECRET must be set")
		os.Exit(1)
	}

	clientID := uuid.New()
	if *clientIDFlag != "" {
		parsed, err := uuid.Parse(*clientIDFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid client id %q: %v\n", *clientIDFlag, err)
			os.Exit(1)
		}
		clientID = parsed
	}

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:          secret,
		TokenLifetimeHours: *lifetimeFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize JWT service: %v\n", err)
		os.Exit(1)
	}

	token, err := jwtService.GenerateToken(context.Background(), clientID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Client ID: %s\nToken:     %s\n", clientID, token)
}
