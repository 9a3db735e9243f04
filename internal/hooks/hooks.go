// Package hooks registers the push webhook on GitHub so that a fresh
// checkout can be wired up without visiting the repository settings.
package hooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// NewClient creates an authenticated GitHub client. An empty token yields
// an anonymous client, which can only read public data.
func NewClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// SplitFullName splits "owner/repo".
func SplitFullName(fullName string) (owner, repo string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid owner/repo format: %s", fullName)
	}
	return parts[0], parts[1], nil
}

// Register makes sure fullName has an active push webhook delivering JSON to
// hookURL. It returns false when a hook with that URL already exists.
func Register(ctx context.Context, client *github.Client, fullName, hookURL string) (bool, error) {
	owner, repo, err := SplitFullName(fullName)
	if err != nil {
		return false, err
	}

	opts := &github.ListOptions{PerPage: 100}
	for {
		existing, resp, err := client.Repositories.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			return false, fmt.Errorf("listing webhooks: %w", err)
		}

		for _, hook := range existing {
			if hook.Config == nil {
				continue
			}
			if url, ok := hook.Config["url"].(string); ok && url == hookURL {
				return false, nil
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	active := true
	hookReq := &github.Hook{
		Events: []string{"push"},
		Active: &active,
		Config: map[string]interface{}{
			"url":          hookURL,
			"content_type": "json",
			"insecure_ssl": "0",
		},
	}

	_, resp, err := client.Repositories.CreateHook(ctx, owner, repo, hookReq)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, fmt.Errorf("creating webhook: repository %s not found or token lacks admin:repo_hook scope: %w", fullName, err)
		}
		return false, fmt.Errorf("creating webhook: %w", err)
	}

	return true, nil
}
