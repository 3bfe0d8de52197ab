package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ad-itya07/Dionysus/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup for Dionysus configuration",
	Long:  `Creates a configuration file with guided prompts.`,
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// initAnswers are the choices gathered by the init prompts.
type initAnswers struct {
	GitHubTokenEnv bool
	Embedding      string
	LLM            string
	SlackURL       string
	DiscordURL     string
}

func runInit(cmd *cobra.Command, args []string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	fmt.Fprintln(out, "Welcome to Dionysus setup!")
	fmt.Fprintln(out, "This will create a configuration file for you.")
	fmt.Fprintln(out)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "Config file already exists at %s\n", configPath)
		answer := prompt(in, out, "Overwrite? [y/N]: ")
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	a := initAnswers{
		GitHubTokenEnv: prompt(in, out, "Read a GitHub token from $GITHUB_TOKEN? [Y/n]: ") != "n",
		Embedding:      promptDefault(in, out, "Embedding provider (none/openai/ollama) [none]: ", "none"),
		LLM:            promptDefault(in, out, "LLM provider (openai/anthropic/ollama) [openai]: ", "openai"),
		SlackURL:       prompt(in, out, "Slack webhook URL (or press Enter to skip): "),
		DiscordURL:     prompt(in, out, "Discord webhook URL (or press Enter to skip): "),
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(buildConfigYAML(a)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", configPath)
	fmt.Fprintln(out, "Put API keys in the environment or a .env file next to where you run dionysus.")
	return nil
}

func prompt(in *bufio.Reader, out io.Writer, question string) string {
	fmt.Fprint(out, question)
	answer, _ := in.ReadString('\n')
	return strings.TrimSpace(answer)
}

func promptDefault(in *bufio.Reader, out io.Writer, question, def string) string {
	if answer := strings.ToLower(prompt(in, out, question)); answer != "" {
		return answer
	}
	return def
}

func buildConfigYAML(a initAnswers) string {
	var b strings.Builder

	b.WriteString("# Dionysus configuration\n")
	b.WriteString("# ${VAR} placeholders are read from the environment or .env.\n\n")

	b.WriteString("github:\n")
	b.WriteString("  auth: token\n")
	if a.GitHubTokenEnv {
		b.WriteString("  token: ${GITHUB_TOKEN}\n")
	} else {
		b.WriteString("  # token: ${GITHUB_TOKEN}\n")
	}
	b.WriteString("  # For a GitHub App use auth: app with app_id, installation_id and private_key_path.\n\n")

	b.WriteString("providers:\n")
	if a.Embedding != "" && a.Embedding != "none" {
		model, key := embeddingProviderDefaults(a.Embedding)
		b.WriteString("  embedding:\n")
		fmt.Fprintf(&b, "    type: %s\n", a.Embedding)
		fmt.Fprintf(&b, "    model: %s\n", model)
		writeProviderAccess(&b, a.Embedding, key)
	}
	model, key := llmProviderDefaults(a.LLM)
	b.WriteString("  llm:\n")
	fmt.Fprintf(&b, "    type: %s\n", a.LLM)
	fmt.Fprintf(&b, "    model: %s\n", model)
	writeProviderAccess(&b, a.LLM, key)
	b.WriteString("\n")

	b.WriteString("notify:\n")
	if a.SlackURL != "" {
		fmt.Fprintf(&b, "  slack_webhook: %s\n", a.SlackURL)
	} else {
		b.WriteString("  # slack_webhook: https://hooks.slack.com/services/...\n")
	}
	if a.DiscordURL != "" {
		fmt.Fprintf(&b, "  discord_webhook: %s\n", a.DiscordURL)
	} else {
		b.WriteString("  # discord_webhook: https://discord.com/api/webhooks/...\n")
	}
	b.WriteString("\n")

	b.WriteString("ingestion:\n")
	b.WriteString("  chunk_size: 8192\n")
	b.WriteString("  chunk_overlap: 1024\n")
	b.WriteString("  max_commits: 100\n")
	b.WriteString("  ai_commit_summaries: 8\n")
	b.WriteString("  pause_every: 10\n")
	b.WriteString("  pause_duration: 1s\n")
	b.WriteString("  # llm_min_interval: 4s\n\n")

	b.WriteString("server:\n")
	b.WriteString("  addr: \":8080\"\n")
	b.WriteString("  metrics_addr: \":9090\"\n")
	b.WriteString("  commit_poll_interval: 10m\n\n")

	b.WriteString("# ratelimit:\n")
	b.WriteString("#   redis_addr: localhost:6379\n\n")

	b.WriteString("credits:\n")
	b.WriteString("  default_balance: 150\n\n")

	b.WriteString("store:\n")
	b.WriteString("  path: ~/.dionysus/dionysus.db\n")

	return b.String()
}

func writeProviderAccess(b *strings.Builder, provider, key string) {
	if provider == "ollama" {
		b.WriteString("    url: http://localhost:11434\n")
		return
	}
	fmt.Fprintf(b, "    api_key: %s\n", key)
}

// embeddingProviderDefaults returns the default model and api_key placeholder
// for the given embedding provider type.
func embeddingProviderDefaults(provider string) (model, apiKey string) {
	switch provider {
	case "ollama":
		return "nomic-embed-text", ""
	default: // openai
		return "text-embedding-3-small", "${OPENAI_API_KEY}"
	}
}

// llmProviderDefaults returns the default model and api_key placeholder
// for the given LLM provider type.
func llmProviderDefaults(provider string) (model, apiKey string) {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-20250514", "${ANTHROPIC_API_KEY}"
	case "ollama":
		return "llama3", ""
	default: // openai
		return "gpt-4o-mini", "${OPENAI_API_KEY}"
	}
}
