// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sshtrust.
//
// go-sshtrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package validation provides input validation for the names and credentials
// that reach go-sshtrust from the command line, before they are used to build
// trust store paths or written into certificates.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MaxEntryNameLength bounds trust store entry names.
	MaxEntryNameLength = 255

	// MaxCredentialsLength bounds subject credentials.
	MaxCredentialsLength = 4096
)

// entryNamePattern matches safe trust store entry names
var entryNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.@+]+$`)

// ValidateEntryName validates a trust store entry name.
// Entry names become file names inside the trust directory, so:
// - Rejecting empty strings
// - Rejecting null bytes
// - Rejecting absolute paths
// - Rejecting parent directory references (..)
// - Allowing only safe characters
// - Enforcing length limits
func ValidateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("entry name cannot be empty")
	}

	// Check for null bytes (can bypass some path checks)
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("entry name contains null byte")
	}

	// Check length before other validations (prevent ReDoS)
	if len(name) > MaxEntryNameLength {
		return fmt.Errorf("entry name too long (max %d characters)", MaxEntryNameLength)
	}

	if filepath.IsAbs(name) {
		return fmt.Errorf("entry name cannot be an absolute path")
	}

	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("entry name contains path traversal attempt")
	}

	if !entryNamePattern.MatchString(name) {
		return fmt.Errorf("entry name contains invalid characters (allowed: a-z, A-Z, 0-9, -, _, ., @, +)")
	}

	return nil
}

// ValidateCredentials validates subject credentials before issuance.
// Credentials are free text; only empty values, null bytes and oversized
// input are rejected.
func ValidateCredentials(credentials string) error {
	if strings.TrimSpace(credentials) == "" {
		return fmt.Errorf("credentials cannot be empty")
	}
	if strings.Contains(credentials, "\x00") {
		return fmt.Errorf("credentials contain null byte")
	}
	if len(credentials) > MaxCredentialsLength {
		return fmt.Errorf("credentials too long (max %d characters)", MaxCredentialsLength)
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > 1000 {
		s = s[:1000] + "...[truncated]"
	}

	return s
}
