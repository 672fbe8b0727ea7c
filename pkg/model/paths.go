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
	"path/filepath"
	"strings"
)

const (
	// CertificateExt is the file extension of certificate records.
	CertificateExt = "certificate"

	// LegacyCertificateExt is the misspelled extension written by earlier
	// releases. Trust stores still recognise it.
	LegacyCertificateExt = "certficicate"

	// SignatureExt is the file extension of detached signature records.
	SignatureExt = "signature"
)

// IsCertificateFile reports whether name carries a certificate extension.
func IsCertificateFile(name string) bool {
	ext := extension(name)
	return ext == CertificateExt || ext == LegacyCertificateExt
}

// CertificatePath returns path with its extension set to CertificateExt.
func CertificatePath(path string) string {
	return withExtension(path, CertificateExt)
}

// SignaturePath returns the detached signature path for a document: the
// document's extension is replaced by SignatureExt, or SignatureExt is
// appended when the document has none.
func SignaturePath(documentPath string) string {
	return withExtension(documentPath, SignatureExt)
}

// extension returns the extension of the final path element without the dot.
// A leading dot (".profile") does not start an extension.
func extension(path string) string {
	base := filepath.Base(path)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return base[i+1:]
}

func withExtension(path, ext string) string {
	base := filepath.Base(path)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		path = path[:len(path)-len(base)+i]
	}
	return path + "." + ext
}
