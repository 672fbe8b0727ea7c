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

import "github.com/jeremyhahn/go-sshtrust/pkg/model"

// CertificateKey returns the storage key for a certificate record named name.
// The certificate extension is appended when name does not already carry it
// (or the legacy spelling); any other extension is part of the name.
func CertificateKey(name string) string {
	if model.IsCertificateFile(name) {
		return name
	}
	return name + "." + model.CertificateExt
}

// ListCertificates returns the keys of all certificate records in
// lexicographic order. Entries without a certificate extension are ignored.
func ListCertificates(backend Backend) ([]string, error) {
	keys, err := backend.List("")
	if err != nil {
		return nil, err
	}

	certs := make([]string, 0, len(keys))
	for _, k := range keys {
		if model.IsCertificateFile(k) {
			certs = append(certs, k)
		}
	}
	return certs, nil
}
