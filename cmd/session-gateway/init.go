// ABOUTME: init command that writes a gateway config file from interactive prompts
// ABOUTME: Generates a random JWT secret so the result passes validation as written

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/session-gateway/internal/config"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new config file interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runInit(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// initAnswers holds everything the init prompts collect.
type initAnswers struct {
	HTTPAddr  string
	DBPath    string
	JWTSecret string

	TailscaleEnabled bool
	TSHostname       string
	TSAuthKey        string
	TSEphemeral      bool
	TSFunnel         bool

	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	AgentWebhookURL string
	BackendBaseURL  string
	WebhookSecret   string

	RateLimitBackend string
	RedisAddr        string

	LogLevel  string
	LogFormat string
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "session-gateway configuration setup")
	fmt.Fprintln(out, "====================================")
	fmt.Fprintln(out)

	defaultDBPath := filepath.Join(config.DefaultDataPath(), "gateway.db")

	outputFile := prompt(reader, out, "Config file path", resolveConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	a := initAnswers{JWTSecret: secret}

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, out, "HTTP address", "localhost:8080")

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	a.DBPath = prompt(reader, out, "SQLite database path", defaultDBPath)

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	a.TailscaleEnabled = yes(prompt(reader, out, "Enable Tailscale?", "no"))
	if a.TailscaleEnabled {
		a.TSHostname = prompt(reader, out, "Tailscale hostname", "session-gateway")
		a.TSAuthKey = prompt(reader, out, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = yes(prompt(reader, out, "Ephemeral node?", "no"))
		a.TSFunnel = yes(prompt(reader, out, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Fprintln(out, "\n--- LiveKit Configuration ---")
	a.LiveKitURL = prompt(reader, out, "LiveKit websocket URL", "")
	a.LiveKitAPIKey = prompt(reader, out, "LiveKit API key", "")
	if a.LiveKitAPIKey != "" {
		a.LiveKitAPISecret = prompt(reader, out, "LiveKit API secret", "")
	}

	fmt.Fprintln(out, "\n--- Upstream Services ---")
	a.AgentWebhookURL = prompt(reader, out, "Agent trigger URL", "")
	a.BackendBaseURL = prompt(reader, out, "Backend base URL", "")
	a.WebhookSecret = prompt(reader, out, "Webhook shared secret (leave empty to disable)", "")

	fmt.Fprintln(out, "\n--- Rate Limiting ---")
	a.RateLimitBackend = prompt(reader, out, "Rate limit backend (memory/redis)", config.RateLimitMemory)
	if a.RateLimitBackend == config.RateLimitRedis {
		a.RedisAddr = prompt(reader, out, "Redis address", "localhost:6379")
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file carries secrets.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(a.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  session-gateway serve")

	return nil
}

// renderConfig produces the YAML config for a.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# session-gateway configuration\n")
	cfg.WriteString("# Generated by session-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", a.JWTSecret))
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", a.TailscaleEnabled))
	if a.TailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", a.TSHostname))
		if a.TSAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", a.TSAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", a.TSEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", a.TSFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("livekit:\n")
	cfg.WriteString(fmt.Sprintf("  url: %q\n", a.LiveKitURL))
	cfg.WriteString(fmt.Sprintf("  api_key: %q\n", a.LiveKitAPIKey))
	cfg.WriteString(fmt.Sprintf("  api_secret: %q\n", a.LiveKitAPISecret))
	cfg.WriteString("\n")

	cfg.WriteString("agent:\n")
	cfg.WriteString(fmt.Sprintf("  webhook_url: %q\n", a.AgentWebhookURL))
	cfg.WriteString("  api_key: \"${AGENT_API_KEY}\"\n")
	cfg.WriteString("  retry_attempts: 3\n")
	cfg.WriteString("  timeout: \"15s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("backend:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: %q\n", a.BackendBaseURL))
	cfg.WriteString("  timeout: \"15s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("webhook:\n")
	cfg.WriteString(fmt.Sprintf("  secret: %q\n", a.WebhookSecret))
	cfg.WriteString("  workers: 4\n")
	cfg.WriteString("  queue_size: 64\n")
	cfg.WriteString("  generation_timeout: \"60s\"\n")
	cfg.WriteString("\n")

	backend := a.RateLimitBackend
	if backend == "" {
		backend = config.RateLimitMemory
	}
	cfg.WriteString("ratelimit:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", backend))
	if backend == config.RateLimitRedis {
		cfg.WriteString("  redis:\n")
		cfg.WriteString(fmt.Sprintf("    addr: %q\n", a.RedisAddr))
		cfg.WriteString("    password: \"${REDIS_PASSWORD}\"\n")
		cfg.WriteString("    db: 0\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	return cfg.String()
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
