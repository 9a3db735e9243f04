package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// GitHub owner and repository names
	fullNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+/[a-zA-Z0-9_.-]+$`)
	refPattern      = regexp.MustCompile(`^refs/[a-zA-Z0-9/_.-]+$`)
	servicePattern  = regexp.MustCompile(`^[a-zA-Z0-9_@.-]+$`)
)

// ValidateFullName checks an "owner/repo" repository name.
func ValidateFullName(name string) error {
	if name == "" {
		return fmt.Errorf("repository full name cannot be empty")
	}
	if !fullNamePattern.MatchString(name) {
		return fmt.Errorf("repository full name must look like owner/repo, got %q", name)
	}
	return nil
}

// ValidateRef ensures a git reference is fully qualified (refs/heads/main,
// refs/tags/v1) and safe to log and compare.
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("ref cannot be empty")
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("ref must be fully qualified (refs/heads/<branch>), got %q", ref)
	}
	if strings.Contains(ref, "..") || strings.HasSuffix(ref, "/") {
		return fmt.Errorf("ref contains invalid sequence: %q", ref)
	}
	return nil
}

// ValidateServiceName ensures the service name is a single safe argv element.
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("service name cannot start with '-'")
	}
	if !servicePattern.MatchString(name) {
		return fmt.Errorf("service name contains invalid characters: %q", name)
	}
	return nil
}
