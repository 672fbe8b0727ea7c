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

// Command sshtrust issues certificates over OpenSSH keys, signs documents
// and checks signed documents against a directory of trusted certificates.
package main

import (
	"os"

	"github.com/jeremyhahn/go-sshtrust/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
