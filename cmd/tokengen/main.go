// Package main mints caller tokens and shows the operator token for local
// development. Tokens are signed with the development key unless -key is set.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "shikkha/internal/jwt_token"
	id "shikkha/pkg/domain"
)

const (
	// Matches config.go when JWT_SIGNING_KEY is not set.
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "shikkha"
	defaultAudience = "shikkha-admin"
	defaultTokenTTL = 12 * time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in,omitempty"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	accessCmd := flag.NewFlagSet("access", flag.ExitOnError)
	wallet := accessCmd.String("wallet", "", "Caller wallet address (required)")
	key := accessCmd.String("key", devSigningKey, "HS256 signing key")
	issuer := accessCmd.String("issuer", defaultIssuer, "Token issuer")
	audience := accessCmd.String("audience", defaultAudience, "Token audience")
	ttl := accessCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	accessJSON := accessCmd.Bool("json", false, "Output as JSON")

	operatorCmd := flag.NewFlagSet("operator", flag.ExitOnError)
	operatorJSON := operatorCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "access":
		_ = accessCmd.Parse(os.Args[2:])
		generateAccessToken(*wallet, *key, *issuer, *audience, *ttl, *accessJSON)
	case "operator":
		_ = operatorCmd.Parse(os.Args[2:])
		showOperatorToken(*operatorJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate caller tokens for the shikkha admin API

WARNING: The default signing key is the development key and will NOT work
         where JWT_SIGNING_KEY is configured.

Usage:
  tokengen <command> [flags]

Commands:
  access    Generate a caller access token (JWT)
  operator  Show how to pass the operator token

Examples:
  # Token for the ledger administrator
  tokengen access -wallet 0xA11CE

  # Token signed with a custom key, valid for one hour
  tokengen access -wallet 0xA11CE -key "$JWT_SIGNING_KEY" -ttl 1h

  # Output as JSON
  tokengen access -wallet 0xA11CE -json`)
}

func generateAccessToken(wallet, key, issuer, audience string, ttl time.Duration, jsonOutput bool) {
	if wallet == "" {
		fmt.Fprintln(os.Stderr, "-wallet is required")
		os.Exit(1)
	}
	caller, err := id.ParseAddress(wallet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid wallet: %v\n", err)
		os.Exit(1)
	}

	svc := jwttoken.NewJWTService(key, issuer, audience)
	token, claims, err := svc.GenerateAccessToken(caller, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "access_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub":         claims.Subject,
				"jti":         claims.ID,
				"api_version": claims.Version,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Access Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Caller:     %s\n", claims.Subject)
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Printf("JTI:        %s\n", claims.ID)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/v1/admin/whoami")
}

func showOperatorToken(jsonOutput bool) {
	token := os.Getenv("OPERATOR_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "OPERATOR_TOKEN is not set; operator routes are disabled")
		os.Exit(1)
	}
	if jsonOutput {
		printJSON(tokenOutput{
			Token: token,
			Type:  "operator_token",
			Usage: map[string]string{
				"header": "X-Operator-Token: " + token,
			},
		})
		return
	}
	fmt.Println("Operator Token")
	fmt.Println("==============")
	fmt.Printf("Token: %s\n", token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -X POST -H \"X-Operator-Token: " + token + "\" http://localhost:8080/v1/ops/reconcile")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
