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

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// DetachedSignature is a signature over a document kept apart from the
// document, tagged with the credentials of the certificate its signer
// presented at signing time.
type DetachedSignature struct {
	Signature            string `toml:"signature"`
	SignatoryCredentials string `toml:"signatory_credentials"`
}

type detachedSignatureRecord struct {
	Signature            *string `toml:"signature"`
	SignatoryCredentials *string `toml:"signatory_credentials"`
}

// ParseDetachedSignature decodes a TOML detached signature. Both fields are
// required.
func ParseDetachedSignature(data []byte) (*DetachedSignature, error) {
	var rec detachedSignatureRecord
	if err := decodeRecord(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: detached signature: %v", ErrParse, err)
	}
	if rec.Signature == nil {
		return nil, fmt.Errorf("%w: detached signature: missing signature", ErrParse)
	}
	if rec.SignatoryCredentials == nil {
		return nil, fmt.Errorf("%w: detached signature: missing signatory_credentials", ErrParse)
	}
	return &DetachedSignature{
		Signature:            *rec.Signature,
		SignatoryCredentials: *rec.SignatoryCredentials,
	}, nil
}

// Marshal encodes the detached signature as TOML.
func (s *DetachedSignature) Marshal() ([]byte, error) {
	data, err := toml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: detached signature: %v", ErrParse, err)
	}
	return data, nil
}
