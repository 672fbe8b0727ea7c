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

package storage

import (
	"fmt"
	"strings"
)

// ValidateKey reports whether key names a single trust store entry. Keys are
// flat: they never carry a path separator and never name the directory
// itself or its parent.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: key contains null byte", ErrInvalidKey)
	case strings.ContainsAny(key, `/\`):
		return fmt.Errorf("%w: key %q contains a path separator", ErrInvalidKey, key)
	case key == "." || key == "..":
		return fmt.Errorf("%w: key %q names a directory", ErrInvalidKey, key)
	}
	return nil
}
