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

// Package model defines the two persisted records of go-sshtrust, the
// Certificate and the DetachedSignature, together with their TOML encoding and
// the canonical byte sequence a certificate signature covers.
package model

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Certificate binds free-form subject credentials to an OpenSSH public key.
//
// IssuerCredentials is nil for self-signed certificates. Signature is nil only
// while a certificate is being issued; every persisted certificate carries one.
type Certificate struct {
	SubjectCredentials string  `toml:"subject_credentials"`
	PublicKey          string  `toml:"public_key"`
	IssuerCredentials  *string `toml:"issuer_credentials,omitempty"`
	Signature          *string `toml:"signature,omitempty"`
}

// certificateRecord mirrors Certificate with every field optional so that
// absent required fields can be told apart from empty ones.
type certificateRecord struct {
	SubjectCredentials *string `toml:"subject_credentials"`
	PublicKey          *string `toml:"public_key"`
	IssuerCredentials  *string `toml:"issuer_credentials"`
	Signature          *string `toml:"signature"`
}

// ParseCertificate decodes a TOML certificate. The subject credentials and the
// public key are required; issuer credentials and signature are optional.
func ParseCertificate(data []byte) (*Certificate, error) {
	var rec certificateRecord
	if err := decodeRecord(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: certificate: %v", ErrParse, err)
	}
	if rec.SubjectCredentials == nil {
		return nil, fmt.Errorf("%w: certificate: missing subject_credentials", ErrParse)
	}
	if rec.PublicKey == nil {
		return nil, fmt.Errorf("%w: certificate: missing public_key", ErrParse)
	}
	return &Certificate{
		SubjectCredentials: *rec.SubjectCredentials,
		PublicKey:          *rec.PublicKey,
		IssuerCredentials:  rec.IssuerCredentials,
		Signature:          rec.Signature,
	}, nil
}

// ParseSignedCertificate decodes a certificate and additionally requires it to
// carry a signature, as every persisted certificate must.
func ParseSignedCertificate(data []byte) (*Certificate, error) {
	cert, err := ParseCertificate(data)
	if err != nil {
		return nil, err
	}
	if cert.Signature == nil {
		return nil, fmt.Errorf("%w: certificate: missing signature", ErrParse)
	}
	return cert, nil
}

// Marshal encodes the certificate as TOML. Field order is fixed, so equal
// certificates always encode to identical bytes.
func (c *Certificate) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: certificate: %v", ErrParse, err)
	}
	return data, nil
}

// SignableBytes returns the byte sequence a certificate signature covers: the
// subject credentials, the public key and, when present, the issuer
// credentials, concatenated without separators or length prefixes.
//
// Because nothing delimits the fields, two certificates whose field boundaries
// shift can produce the same bytes. The encoding is kept as is for
// compatibility with certificates already in circulation.
func (c *Certificate) SignableBytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(c.SubjectCredentials)
	buf.WriteString(c.PublicKey)
	if c.IssuerCredentials != nil {
		buf.WriteString(*c.IssuerCredentials)
	}
	return buf.Bytes()
}

// IsSelfSigned reports whether the certificate names no issuer.
func (c *Certificate) IsSelfSigned() bool {
	return c.IssuerCredentials == nil
}

// Issuer returns the issuer credentials, or "" for a self-signed certificate.
func (c *Certificate) Issuer() string {
	if c.IssuerCredentials == nil {
		return ""
	}
	return *c.IssuerCredentials
}

// SignatureText returns the encoded signature, or "" when unsigned.
func (c *Certificate) SignatureText() string {
	if c.Signature == nil {
		return ""
	}
	return *c.Signature
}

// Equal reports whether two certificates carry identical fields.
func (c *Certificate) Equal(other *Certificate) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.SubjectCredentials == other.SubjectCredentials &&
		c.PublicKey == other.PublicKey &&
		equalOptional(c.IssuerCredentials, other.IssuerCredentials) &&
		equalOptional(c.Signature, other.Signature)
}

// StringPtr returns a pointer to s, for filling optional certificate fields.
func StringPtr(s string) *string {
	return &s
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func decodeRecord(data []byte, v any) error {
	return toml.NewDecoder(bytes.NewReader(data)).Decode(v)
}
