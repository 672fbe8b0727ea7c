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

package trust

import (
	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/sshkey"
	"github.com/jeremyhahn/go-sshtrust/pkg/truststore"
)

// Host exposes the protocol over the textual forms of keys and records, the
// shape a command-line front end or an embedding program deals in.
type Host struct {
	Provider sshkey.Provider
	Logger   logger.Logger
	// Options are appended to every protocol call.
	Options []Option
}

// NewHost returns a Host using the OpenSSH provider and no logging.
func NewHost() *Host {
	return &Host{
		Provider: sshkey.NewOpenSSH(),
		Logger:   logger.NewNop(),
	}
}

func (h *Host) options(extra []Option) []Option {
	opts := make([]Option, 0, len(h.Options)+len(extra)+2)
	opts = append(opts, WithProvider(h.provider()), WithLogger(h.Logger))
	opts = append(opts, h.Options...)
	return append(opts, extra...)
}

func (h *Host) provider() sshkey.Provider {
	if h.Provider == nil {
		return sshkey.NewOpenSSH()
	}
	return h.Provider
}

// IssueText issues a certificate and returns its encoded record. issuerCertText
// is nil for a self-signed certificate.
func (h *Host) IssueText(subject, publicKeyText string, issuerCertText, privateKeyText, passphrase []byte, opts ...Option) ([]byte, error) {
	var issuer *model.Certificate
	if issuerCertText != nil {
		var err error
		if issuer, err = model.ParseCertificate(issuerCertText); err != nil {
			return nil, err
		}
	}

	key, err := h.provider().LoadPrivateKey(privateKeyText, passphrase)
	if err != nil {
		return nil, err
	}

	cert, err := Issue(subject, publicKeyText, issuer, key, h.options(opts)...)
	if err != nil {
		return nil, err
	}
	return cert.Marshal()
}

// SignDocumentText signs document and returns the encoded detached signature.
func (h *Host) SignDocumentText(document, certText, privateKeyText, passphrase []byte, opts ...Option) ([]byte, error) {
	cert, err := model.ParseSignedCertificate(certText)
	if err != nil {
		return nil, err
	}

	key, err := h.provider().LoadPrivateKey(privateKeyText, passphrase)
	if err != nil {
		return nil, err
	}

	ds, err := SignDocument(document, key, cert, h.options(opts)...)
	if err != nil {
		return nil, err
	}
	return ds.Marshal()
}

// VerifyText verifies document against an encoded detached signature and
// the encoded certificates of a trust store, in the given order.
// Certificates that do not parse are skipped.
func (h *Host) VerifyText(document, sigText []byte, trustStoreTexts [][]byte, opts ...Option) (*Result, error) {
	sig, err := model.ParseDetachedSignature(sigText)
	if err != nil {
		return nil, err
	}

	store := truststore.FromTexts(trustStoreTexts, truststore.WithLogger(h.Logger))
	defer func() { _ = store.Close() }()

	certs, err := store.Certificates()
	if err != nil {
		return nil, err
	}
	return Verify(document, sig, certs, h.options(opts)...)
}

// IssueText is Host.IssueText on a default Host.
func IssueText(subject, publicKeyText string, issuerCertText, privateKeyText, passphrase []byte) ([]byte, error) {
	return NewHost().IssueText(subject, publicKeyText, issuerCertText, privateKeyText, passphrase)
}

// SignDocumentText is Host.SignDocumentText on a default Host.
func SignDocumentText(document, certText, privateKeyText, passphrase []byte) ([]byte, error) {
	return NewHost().SignDocumentText(document, certText, privateKeyText, passphrase)
}

// VerifyText is Host.VerifyText on a default Host.
func VerifyText(document, sigText []byte, trustStoreTexts [][]byte) (*Result, error) {
	return NewHost().VerifyText(document, sigText, trustStoreTexts)
}
