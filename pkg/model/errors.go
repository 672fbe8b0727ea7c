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

package model

import "errors"

// Error kinds shared by every go-sshtrust package. Callers branch on them with
// errors.Is; the wrapped message carries the detail.
//
// A compromised document or a signatory missing from the trust store are
// verification outcomes, not errors, and never surface through these values.
var (
	// ErrParse indicates a certificate or detached signature record is malformed
	// or is missing a required field.
	ErrParse = errors.New("sshtrust: malformed record")

	// ErrKey indicates key material that cannot be loaded, including a missing
	// or wrong passphrase.
	ErrKey = errors.New("sshtrust: invalid key material")

	// ErrCrypto indicates the signing or verification primitive itself failed,
	// as opposed to a signature that simply does not validate.
	ErrCrypto = errors.New("sshtrust: cryptographic operation failed")

	// ErrDecode indicates a signature whose text or wire encoding is malformed.
	ErrDecode = errors.New("sshtrust: malformed signature encoding")

	// ErrIO indicates a file or directory could not be read or written.
	ErrIO = errors.New("sshtrust: i/o failure")

	// ErrIdentityMismatch indicates the signing key is not the key published by
	// the certificate it claims to sign for.
	ErrIdentityMismatch = errors.New("sshtrust: signing key does not match certificate")

	// ErrAmbiguousSignatory indicates more than one trusted certificate carries
	// the signatory's credentials under a policy that rejects ambiguity.
	ErrAmbiguousSignatory = errors.New("sshtrust: multiple trusted certificates match signatory")
)
