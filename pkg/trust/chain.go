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
	"fmt"
	"time"

	"github.com/jeremyhahn/go-sshtrust/pkg/metrics"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/sshkey"
)

// MaxChainDepth bounds the number of certificates WalkChain visits.
const MaxChainDepth = 16

// ChainState classifies the issuer chain of a certificate.
type ChainState int

const (
	// ChainRoot is a self-signed certificate whose signature validates
	// against its own key.
	ChainRoot ChainState = iota
	// ChainChained is a certificate whose every link validates against its
	// issuer's published key, ending in a valid root.
	ChainChained
	// ChainBroken is any other chain; Chain.Reason says why.
	ChainBroken
)

// String returns the label used in output.
func (s ChainState) String() string {
	switch s {
	case ChainRoot:
		return "root"
	case ChainChained:
		return "chained"
	case ChainBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ChainState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Chain is the result of WalkChain.
type Chain struct {
	State  ChainState `json:"state"`
	Reason string     `json:"reason,omitempty"`
	// Path lists subject credentials from the leaf to the last certificate
	// resolved.
	Path []string `json:"path"`
}

// IssuerResolver finds the trusted certificate of an issuer by its subject
// credentials. truststore.Store satisfies it.
type IssuerResolver interface {
	Lookup(subject string) (*model.Certificate, error)
}

// IssuerResolverFunc adapts a function to IssuerResolver.
type IssuerResolverFunc func(subject string) (*model.Certificate, error)

// Lookup implements IssuerResolver.
func (f IssuerResolverFunc) Lookup(subject string) (*model.Certificate, error) {
	return f(subject)
}

// IssuerEnumerator is implemented by resolvers that can list every
// certificate carrying a subject. truststore.Store satisfies it. Under
// PolicyRejectAmbiguous an issuer matched by more than one certificate
// breaks the chain; resolvers without it are trusted to be unambiguous.
type IssuerEnumerator interface {
	All(subject string) ([]*model.Certificate, error)
}

// WalkChain follows issuer credentials from cert up to a self-signed root,
// checking each certificate's signature against its issuer's published key.
// A missing issuer, a signature that does not validate, a cycle or a chain
// longer than MaxChainDepth yields ChainBroken. Issuers resolve to the first
// match, as under PolicyFirstMatch.
func WalkChain(cert *model.Certificate, resolve IssuerResolver, provider sshkey.Provider) *Chain {
	return WalkChainPolicy(cert, resolve, provider, PolicyFirstMatch)
}

// WalkChainPolicy is WalkChain with issuer resolution following policy.
func WalkChainPolicy(cert *model.Certificate, resolve IssuerResolver, provider sshkey.Provider, policy Policy) *Chain {
	start := time.Now()
	chain := walk(cert, resolve, provider, policy)
	status := metrics.StatusSuccess
	if chain.State == ChainBroken {
		status = metrics.StatusError
	}
	metrics.RecordOperation(metrics.OpChain, status, time.Since(start).Seconds())
	return chain
}

func walk(cert *model.Certificate, resolve IssuerResolver, provider sshkey.Provider, policy Policy) *Chain {
	chain := &Chain{}
	if cert == nil {
		return chain.broken("no certificate")
	}
	if provider == nil {
		provider = sshkey.NewOpenSSH()
	}

	seen := make(map[string]bool)
	current := cert
	for depth := 0; ; depth++ {
		if depth >= MaxChainDepth {
			return chain.broken(fmt.Sprintf("chain exceeds %d certificates", MaxChainDepth))
		}
		// Certificates are identified by content: a renewal may share its
		// issuer's subject without being the same certificate.
		subject := current.SubjectCredentials
		id := certificateIdentity(current)
		if seen[id] {
			return chain.broken(fmt.Sprintf("cycle at %q", subject))
		}
		seen[id] = true
		chain.Path = append(chain.Path, subject)

		if current.IsSelfSigned() {
			if reason := checkLink(provider, current, current.PublicKey); reason != "" {
				return chain.broken(reason)
			}
			if depth == 0 {
				chain.State = ChainRoot
			} else {
				chain.State = ChainChained
			}
			return chain
		}

		if resolve == nil {
			return chain.broken(fmt.Sprintf("issuer %q cannot be resolved", current.Issuer()))
		}
		issuer, err := resolveIssuer(resolve, current.Issuer(), policy)
		if err != nil {
			return chain.broken(err.Error())
		}
		if reason := checkLink(provider, current, issuer.PublicKey); reason != "" {
			return chain.broken(reason)
		}
		current = issuer
	}
}

func resolveIssuer(resolve IssuerResolver, subject string, policy Policy) (*model.Certificate, error) {
	if policy == PolicyRejectAmbiguous {
		if enum, ok := resolve.(IssuerEnumerator); ok {
			all, err := enum.All(subject)
			if err == nil && len(all) > 1 {
				return nil, fmt.Errorf("issuer %q is ambiguous (%d trusted certificates)", subject, len(all))
			}
		}
	}
	issuer, err := resolve.Lookup(subject)
	if err != nil || issuer == nil {
		return nil, fmt.Errorf("issuer %q is not trusted", subject)
	}
	return issuer, nil
}

func certificateIdentity(cert *model.Certificate) string {
	return string(cert.SignableBytes()) + "\x00" + cert.SignatureText()
}

func (c *Chain) broken(reason string) *Chain {
	c.State = ChainBroken
	c.Reason = reason
	return c
}

// checkLink returns "" when cert's signature validates against
// publicKeyText, otherwise the reason it does not.
func checkLink(provider sshkey.Provider, cert *model.Certificate, publicKeyText string) string {
	if cert.Signature == nil {
		return fmt.Sprintf("certificate %q is not signed", cert.SubjectCredentials)
	}
	ok, err := verifySignature(provider, publicKeyText, cert.SignableBytes(), *cert.Signature)
	if err != nil {
		return fmt.Sprintf("certificate %q: %v", cert.SubjectCredentials, err)
	}
	if !ok {
		return fmt.Sprintf("signature of %q does not validate", cert.SubjectCredentials)
	}
	return ""
}
