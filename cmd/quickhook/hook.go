package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/karmakaze/quicklog/internal/hooks"

	"github.com/spf13/cobra"
)

var (
	hookURL   string
	hookToken string
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the GitHub webhook",
}

var hookRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create the push webhook on GitHub",
	Long: `Create a push webhook on the target repository pointing at this listener.

Nothing is created if a webhook with the same URL already exists. The token
needs the admin:repo_hook scope and is taken from --token, github.token in
the config file, or GITHUB_TOKEN, in that order.

Example:
  quickhook hook register --url https://deploy.example.com:8954/`,
	Args: cobra.NoArgs,
	RunE: runHookRegister,
}

func init() {
	hookRegisterCmd.Flags().StringVar(&hookURL, "url", "", "Public URL GitHub should deliver to (default: github.webhook_url)")
	hookRegisterCmd.Flags().StringVar(&hookToken, "token", "", "GitHub token (default: github.token or GITHUB_TOKEN)")
	hookCmd.AddCommand(hookRegisterCmd)
}

func runHookRegister(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	target := firstNonEmpty(hookURL, cfg.GitHub.WebhookURL)
	if err := validateWebhookURL(target); err != nil {
		return err
	}

	token := firstNonEmpty(hookToken, cfg.GitHub.Token, os.Getenv("GITHUB_TOKEN"))
	if token == "" {
		return fmt.Errorf("GitHub token required: pass --token, set github.token or GITHUB_TOKEN")
	}

	client := hooks.NewClient(cmd.Context(), token)
	created, err := hooks.Register(cmd.Context(), client, cfg.Target.FullName, target)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(out, "Created push webhook on %s -> %s\n", cfg.Target.FullName, target)
	} else {
		fmt.Fprintf(out, "Webhook already exists on %s -> %s\n", cfg.Target.FullName, target)
	}
	return nil
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("webhook URL required: pass --url or set github.webhook_url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid webhook URL %q: missing host", raw)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
