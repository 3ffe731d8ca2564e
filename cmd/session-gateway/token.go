// ABOUTME: token commands for minting actor bearer tokens and inspecting join credentials
// ABOUTME: Uses the configured JWT secret and LiveKit key pair

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/session-gateway/internal/auth"
	"github.com/2389/session-gateway/internal/credential"
)

var (
	tokenActor string
	tokenTTL   time.Duration
	tokenSave  bool
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd, tokenInspectCmd)

	tokenIssueCmd.Flags().StringVar(&tokenActor, "actor", "", "actor ID to embed as the token subject (required)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")
	tokenIssueCmd.Flags().BoolVar(&tokenSave, "save", false, "also write the token next to the config file")
	_ = tokenIssueCmd.MarkFlagRequired("actor")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and inspect tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Mint a bearer token for an actor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		actor := strings.TrimSpace(tokenActor)
		if actor == "" {
			return fmt.Errorf("--actor cannot be empty")
		}

		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return fmt.Errorf("creating JWT verifier: %w", err)
		}
		token, err := verifier.Generate(actor, tokenTTL)
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}

		if tokenSave {
			tokenPath := filepath.Join(filepath.Dir(path), "token")
			if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
				return fmt.Errorf("writing token file: %w", err)
			}
			color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "  ✓ Saved token: %s\n", tokenPath)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect <credential>",
	Short: "Verify a room join credential and print its grant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		issuer := credential.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL)
		claims, err := issuer.Parse(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		cyan := color.New(color.FgCyan)
		cyan.Fprintln(out, "  Join Credential")
		cyan.Fprintln(out, "  ---------------")
		fmt.Fprintf(out, "  Identity:     %s\n", claims.Subject)
		fmt.Fprintf(out, "  Name:         %s\n", claims.Name)
		fmt.Fprintf(out, "  Room:         %s\n", claims.Video.Room)
		fmt.Fprintf(out, "  Capabilities: %v\n", claims.Video.Capabilities())
		if claims.ExpiresAt != nil {
			fmt.Fprintf(out, "  Expires:      %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
		}
		return nil
	},
}
