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

// Package sshkey is the key provider of go-sshtrust. It loads OpenSSH-style
// private and public keys, signs arbitrary bytes and verifies signatures.
// The rest of the module only sees the Provider, PrivateKey and PublicKey
// interfaces and never inspects key internals.
package sshkey

// Provider loads key material from its textual form.
type Provider interface {
	// LoadPrivateKey parses a private key. passphrase may be nil for
	// unencrypted keys. Malformed text and missing or wrong passphrases
	// wrap model.ErrKey.
	LoadPrivateKey(text []byte, passphrase []byte) (PrivateKey, error)

	// LoadPublicKey parses a public key in authorized_keys form. Malformed
	// text wraps model.ErrKey.
	LoadPublicKey(text string) (PublicKey, error)
}

// PrivateKey produces signatures.
type PrivateKey interface {
	// Sign signs data. Failures of the underlying primitive wrap
	// model.ErrCrypto.
	Sign(data []byte) ([]byte, error)

	// Public returns the matching public key.
	Public() PublicKey
}

// PublicKey verifies signatures.
type PublicKey interface {
	// Verify reports whether signature is a valid signature of data. A
	// well-formed signature that does not validate yields (false, nil); a
	// signature that cannot be decoded wraps model.ErrDecode.
	Verify(data, signature []byte) (bool, error)

	// Text returns the authorized_keys form of the key.
	Text() string

	// Equal reports whether other is the same key. Comments are ignored.
	Equal(other PublicKey) bool
}
