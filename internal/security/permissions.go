package security

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// PermLogFile is for log files that may contain deployment information.
	PermLogFile os.FileMode = 0640

	// PermDBFile is for the delivery journal.
	PermDBFile os.FileMode = 0640

	// PermDirectory is for log and database directories.
	PermDirectory os.FileMode = 0750
)

// OpenAppendFile opens (creating if needed) a file for appending with the
// given permissions, creating parent directories with PermDirectory.
func OpenAppendFile(path string, perm os.FileMode) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), PermDirectory); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return file, nil
}

// IsWorldReadable checks if a file is readable by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// IsWorldWritable checks if a file is writable by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// ValidateSecurePermissions validates that a file holding sensitive data is
// neither world-readable nor world-writable.
func ValidateSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()

	if IsWorldReadable(perm) {
		return fmt.Errorf("file %s is world-readable (%04o)", path, perm)
	}

	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o)", path, perm)
	}

	return nil
}
