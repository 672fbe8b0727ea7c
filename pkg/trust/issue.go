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

// Package trust implements the go-sshtrust protocol: issuing certificates,
// signing documents and verifying documents against a set of trusted
// certificates. The functions are pure; reading and writing records is left
// to the caller.
package trust

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sshtrust/pkg/metrics"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/sshkey"
)

// Issue creates a certificate binding subject to publicKeyText, signed with
// key. When issuer is nil the certificate is self-signed; otherwise its
// issuer credentials are the issuer's subject credentials. The issuer's own
// signature is not checked.
//
// Unless WithoutKeyBinding is given, key must be the key published by the
// certificate being vouched for: publicKeyText when self-signed, the
// issuer's public key otherwise.
func Issue(subject, publicKeyText string, issuer *model.Certificate, key sshkey.PrivateKey, opts ...Option) (cert *model.Certificate, err error) {
	o := newOptions(opts)
	start := time.Now()
	defer func() {
		metrics.RecordOperation(metrics.OpIssue, metrics.Status(err), time.Since(start).Seconds())
	}()

	cert = &model.Certificate{
		SubjectCredentials: subject,
		PublicKey:          publicKeyText,
	}
	bound := publicKeyText
	if issuer != nil {
		cert.IssuerCredentials = model.StringPtr(issuer.SubjectCredentials)
		bound = issuer.PublicKey
	}

	if o.keyBinding {
		if err := checkKeyBinding(o.provider, key, bound); err != nil {
			return nil, err
		}
	}

	sig, err := sign(key, cert.SignableBytes())
	if err != nil {
		return nil, err
	}
	cert.Signature = model.StringPtr(sig)

	o.logger.Debug("certificate issued",
		logger.String("subject", subject),
		logger.String("issuer", cert.Issuer()),
		logger.Bool("self_signed", cert.IsSelfSigned()))
	return cert, nil
}

// SignDocument produces a detached signature over document on behalf of the
// holder of signer. Unless WithoutKeyBinding is given, key must be the key
// published by signer.
func SignDocument(document []byte, key sshkey.PrivateKey, signer *model.Certificate, opts ...Option) (ds *model.DetachedSignature, err error) {
	o := newOptions(opts)
	start := time.Now()
	defer func() {
		metrics.RecordOperation(metrics.OpSign, metrics.Status(err), time.Since(start).Seconds())
	}()

	if signer == nil {
		return nil, fmt.Errorf("%w: no signer certificate", model.ErrParse)
	}
	if o.keyBinding {
		if err := checkKeyBinding(o.provider, key, signer.PublicKey); err != nil {
			return nil, err
		}
	}

	sig, err := sign(key, document)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("document signed",
		logger.String("signatory", signer.SubjectCredentials),
		logger.Int("bytes", len(document)))
	return &model.DetachedSignature{
		Signature:            sig,
		SignatoryCredentials: signer.SubjectCredentials,
	}, nil
}

func sign(key sshkey.PrivateKey, data []byte) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: no signing key", model.ErrKey)
	}
	raw, err := key.Sign(data)
	if err != nil {
		if errors.Is(err, model.ErrCrypto) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", model.ErrCrypto, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func checkKeyBinding(provider sshkey.Provider, key sshkey.PrivateKey, publicKeyText string) error {
	if key == nil {
		return fmt.Errorf("%w: no signing key", model.ErrKey)
	}
	published, err := provider.LoadPublicKey(publicKeyText)
	if err != nil {
		return err
	}
	if !published.Equal(key.Public()) {
		return model.ErrIdentityMismatch
	}
	return nil
}
