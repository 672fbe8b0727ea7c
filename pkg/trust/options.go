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
	"github.com/jeremyhahn/go-sshtrust/pkg/sshkey"
)

// Policy decides which trusted certificate answers for a signatory when more
// than one carries the same subject credentials.
type Policy int

const (
	// PolicyFirstMatch uses the first matching certificate in the order the
	// candidates are supplied. Trust stores supply them in lexicographic
	// entry-name order.
	PolicyFirstMatch Policy = iota

	// PolicyRejectAmbiguous fails with model.ErrAmbiguousSignatory when more
	// than one candidate matches.
	PolicyRejectAmbiguous
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyFirstMatch:
		return "first"
	case PolicyRejectAmbiguous:
		return "strict"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a configuration name to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "first":
		return PolicyFirstMatch, true
	case "strict":
		return PolicyRejectAmbiguous, true
	default:
		return PolicyFirstMatch, false
	}
}

// Option configures Issue, SignDocument and Verify. Options that do not
// apply to an operation are ignored by it.
type Option func(*options)

type options struct {
	logger     logger.Logger
	provider   sshkey.Provider
	keyBinding bool
	policy     Policy
	resolver   IssuerResolver
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:     logger.NewNop(),
		provider:   sshkey.NewOpenSSH(),
		keyBinding: true,
		policy:     PolicyFirstMatch,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger operations report to.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProvider sets the key provider used to parse public keys.
// Defaults to the OpenSSH provider.
func WithProvider(p sshkey.Provider) Option {
	return func(o *options) {
		if p != nil {
			o.provider = p
		}
	}
}

// WithoutKeyBinding lets Issue and SignDocument sign with a key that does
// not match the certificate being vouched for.
func WithoutKeyBinding() Option {
	return func(o *options) {
		o.keyBinding = false
	}
}

// WithPolicy sets the trust resolution policy used by Verify.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithChainValidation makes Verify walk the issuer chain of the matched
// certificate through resolver and report OutcomeBrokenChain when the
// chain does not lead to a valid self-signed root.
func WithChainValidation(resolver IssuerResolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}
