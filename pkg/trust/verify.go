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
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sshtrust/pkg/metrics"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/sshkey"
)

// Outcome is the verdict of a completed verification. Outcomes are ordinary
// results, never errors.
type Outcome int

const (
	// OutcomeAuthentic means the document was signed by the trusted holder of
	// the signatory credentials.
	OutcomeAuthentic Outcome = iota
	// OutcomeCompromised means a trusted certificate matched but the
	// signature does not validate against the document.
	OutcomeCompromised
	// OutcomeNoTrustedCertificate means no trusted certificate carries the
	// signatory credentials.
	OutcomeNoTrustedCertificate
	// OutcomeBrokenChain means the signature is valid but chain validation
	// was requested and the signer's chain does not reach a valid root.
	OutcomeBrokenChain
)

// String returns the label used in output and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeAuthentic:
		return "authentic"
	case OutcomeCompromised:
		return "compromised"
	case OutcomeNoTrustedCertificate:
		return "no_trusted_certificate"
	case OutcomeBrokenChain:
		return "broken_chain"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the outcome of Verify together with the certificate that
// answered for the signatory, if any.
type Result struct {
	Outcome     Outcome            `json:"outcome"`
	Certificate *model.Certificate `json:"certificate,omitempty"`
	Chain       *Chain             `json:"chain,omitempty"`
}

// Verify checks document against sig using the first trusted certificate in
// candidates whose subject credentials equal the signatory credentials.
// Candidates are consumed lazily and, under PolicyFirstMatch, only up to the
// first match.
//
// Verification is stateless: the same inputs always produce the same result.
func Verify(document []byte, sig *model.DetachedSignature, candidates iter.Seq[*model.Certificate], opts ...Option) (res *Result, err error) {
	o := newOptions(opts)
	start := time.Now()
	defer func() {
		metrics.RecordOperation(metrics.OpVerify, metrics.Status(err), time.Since(start).Seconds())
		if err == nil {
			metrics.RecordVerifyOutcome(res.Outcome.String())
		}
	}()

	if sig == nil {
		return nil, fmt.Errorf("%w: no detached signature", model.ErrParse)
	}
	log := o.logger.With(logger.String("signatory", sig.SignatoryCredentials))

	cert, err := resolve(sig.SignatoryCredentials, candidates, o.policy)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		log.Info("no trusted certificate for signatory")
		return &Result{Outcome: OutcomeNoTrustedCertificate}, nil
	}

	ok, err := verifySignature(o.provider, cert.PublicKey, document, sig.Signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warn("signature does not match document")
		return &Result{Outcome: OutcomeCompromised, Certificate: cert}, nil
	}

	res = &Result{Outcome: OutcomeAuthentic, Certificate: cert}
	if o.resolver != nil {
		res.Chain = WalkChainPolicy(cert, o.resolver, o.provider, o.policy)
		if res.Chain.State == ChainBroken {
			log.Warn("certificate chain is broken", logger.String("reason", res.Chain.Reason))
			res.Outcome = OutcomeBrokenChain
		}
	}

	log.Info("document verified", logger.String("outcome", res.Outcome.String()))
	return res, nil
}

func resolve(signatory string, candidates iter.Seq[*model.Certificate], policy Policy) (*model.Certificate, error) {
	if candidates == nil {
		return nil, nil
	}

	var match *model.Certificate
	for cert := range candidates {
		if cert == nil || cert.SubjectCredentials != signatory {
			continue
		}
		if policy != PolicyRejectAmbiguous {
			return cert, nil
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %q", model.ErrAmbiguousSignatory, signatory)
		}
		match = cert
	}
	return match, nil
}

// verifySignature reports whether the base64 signature text validates data
// against publicKeyText. Key material that cannot be parsed is a provider
// failure and wraps model.ErrCrypto.
func verifySignature(provider sshkey.Provider, publicKeyText string, data []byte, signatureText string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(signatureText)
	if err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	pub, err := provider.LoadPublicKey(publicKeyText)
	if err != nil {
		return false, fmt.Errorf("%w: trusted public key: %v", model.ErrCrypto, err)
	}

	ok, err := pub.Verify(data, raw)
	if err != nil {
		if errors.Is(err, model.ErrDecode) || errors.Is(err, model.ErrCrypto) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", model.ErrCrypto, err)
	}
	return ok, nil
}
