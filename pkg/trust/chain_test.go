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
	"testing"

	"github.com/jeremyhahn/go-sshtrust/internal/testutil"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/sshkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver resolves issuers from a fixed set of certificates.
func mapResolver(certs ...*model.Certificate) IssuerResolver {
	bySubject := make(map[string]*model.Certificate, len(certs))
	for _, c := range certs {
		bySubject[c.SubjectCredentials] = c
	}
	return IssuerResolverFunc(func(subject string) (*model.Certificate, error) {
		if c, ok := bySubject[subject]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("unknown issuer %q", subject)
	})
}

func TestWalkChain_Root(t *testing.T) {
	root := newIdentity(t, testutil.KeyTypeEd25519)
	cert := selfSigned(t, "Root CA", root)

	chain := WalkChain(cert, mapResolver(), sshkey.NewOpenSSH())
	assert.Equal(t, ChainRoot, chain.State)
	assert.Empty(t, chain.Reason)
	assert.Equal(t, []string{"Root CA"}, chain.Path)
}

func TestWalkChain_Chained(t *testing.T) {
	root := newIdentity(t, testutil.KeyTypeEd25519)
	intermediate := newIdentity(t, testutil.KeyTypeECDSA)
	leaf := newIdentity(t, testutil.KeyTypeRSA)

	rootCert := selfSigned(t, "Root CA", root)
	interCert, err := Issue("Team CA", intermediate.pubText, rootCert, root.key)
	require.NoError(t, err)
	leafCert, err := Issue("Bob", leaf.pubText, interCert, intermediate.key)
	require.NoError(t, err)

	chain := WalkChain(leafCert, mapResolver(rootCert, interCert), nil)
	assert.Equal(t, ChainChained, chain.State, chain.Reason)
	assert.Equal(t, []string{"Bob", "Team CA", "Root CA"}, chain.Path)
}

func TestWalkChain_Broken(t *testing.T) {
	root := newIdentity(t, testutil.KeyTypeEd25519)
	other := newIdentity(t, testutil.KeyTypeEd25519)
	bob := newIdentity(t, testutil.KeyTypeEd25519)

	rootCert := selfSigned(t, "Root CA", root)
	bobCert, err := Issue("Bob", bob.pubText, rootCert, root.key)
	require.NoError(t, err)

	t.Run("missing issuer", func(t *testing.T) {
		chain := WalkChain(bobCert, mapResolver(), nil)
		assert.Equal(t, ChainBroken, chain.State)
		assert.Contains(t, chain.Reason, "Root CA")
		assert.Equal(t, []string{"Bob"}, chain.Path)
	})

	t.Run("nil resolver", func(t *testing.T) {
		chain := WalkChain(bobCert, nil, nil)
		assert.Equal(t, ChainBroken, chain.State)
	})

	t.Run("issuer key does not validate link", func(t *testing.T) {
		impostorRoot := selfSigned(t, "Root CA", other)
		chain := WalkChain(bobCert, mapResolver(impostorRoot), nil)
		assert.Equal(t, ChainBroken, chain.State)
		assert.Contains(t, chain.Reason, "Bob")
	})

	t.Run("root signature invalid", func(t *testing.T) {
		tampered := *rootCert
		tampered.PublicKey = other.pubText
		chain := WalkChain(&tampered, mapResolver(), nil)
		assert.Equal(t, ChainBroken, chain.State)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned := &model.Certificate{SubjectCredentials: "Eve", PublicKey: bob.pubText}
		chain := WalkChain(unsigned, mapResolver(), nil)
		assert.Equal(t, ChainBroken, chain.State)
		assert.Contains(t, chain.Reason, "not signed")
	})

	t.Run("nil certificate", func(t *testing.T) {
		chain := WalkChain(nil, mapResolver(), nil)
		assert.Equal(t, ChainBroken, chain.State)
	})
}

func TestWalkChain_Cycle(t *testing.T) {
	a := newIdentity(t, testutil.KeyTypeEd25519)
	b := newIdentity(t, testutil.KeyTypeEd25519)

	// A is issued by B and B by A, each link validly signed.
	aCert, err := Issue("A", a.pubText, &model.Certificate{SubjectCredentials: "B", PublicKey: b.pubText}, b.key)
	require.NoError(t, err)
	bCert, err := Issue("B", b.pubText, &model.Certificate{SubjectCredentials: "A", PublicKey: a.pubText}, a.key)
	require.NoError(t, err)

	chain := WalkChain(aCert, mapResolver(aCert, bCert), nil)
	assert.Equal(t, ChainBroken, chain.State)
	assert.Contains(t, chain.Reason, "cycle")
	assert.Equal(t, []string{"A", "B"}, chain.Path)
}

func TestWalkChain_RenewalUnderOwnRoot(t *testing.T) {
	root := newIdentity(t, testutil.KeyTypeEd25519)
	next := newIdentity(t, testutil.KeyTypeEd25519)

	rootCert := selfSigned(t, "Root", root)
	renewed, err := Issue("Root", next.pubText, rootCert, root.key)
	require.NoError(t, err)

	chain := WalkChain(renewed, mapResolver(rootCert), nil)
	assert.Equal(t, ChainChained, chain.State, chain.Reason)
	assert.Equal(t, []string{"Root", "Root"}, chain.Path)
}

// listResolver resolves the first certificate with a subject and lists all
// of them, like a trust store.
type listResolver []*model.Certificate

func (l listResolver) Lookup(subject string) (*model.Certificate, error) {
	for _, c := range l {
		if c.SubjectCredentials == subject {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown issuer %q", subject)
}

func (l listResolver) All(subject string) ([]*model.Certificate, error) {
	var out []*model.Certificate
	for _, c := range l {
		if c.SubjectCredentials == subject {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestWalkChainPolicy_AmbiguousIssuer(t *testing.T) {
	root := newIdentity(t, testutil.KeyTypeEd25519)
	impostor := newIdentity(t, testutil.KeyTypeEd25519)
	bob := newIdentity(t, testutil.KeyTypeEd25519)

	rootCert := selfSigned(t, "Root CA", root)
	impostorCert := selfSigned(t, "Root CA", impostor)
	bobCert, err := Issue("Bob", bob.pubText, rootCert, root.key)
	require.NoError(t, err)

	resolver := listResolver{rootCert, impostorCert}

	chain := WalkChainPolicy(bobCert, resolver, nil, PolicyFirstMatch)
	assert.Equal(t, ChainChained, chain.State, chain.Reason)

	chain = WalkChainPolicy(bobCert, resolver, nil, PolicyRejectAmbiguous)
	assert.Equal(t, ChainBroken, chain.State)
	assert.Contains(t, chain.Reason, "ambiguous")

	chain = WalkChainPolicy(bobCert, listResolver{rootCert}, nil, PolicyRejectAmbiguous)
	assert.Equal(t, ChainChained, chain.State, chain.Reason)

	ds, err := SignDocument([]byte("doc"), bob.key, bobCert)
	require.NoError(t, err)
	res, err := Verify([]byte("doc"), ds, store(bobCert),
		WithPolicy(PolicyRejectAmbiguous), WithChainValidation(resolver))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBrokenChain, res.Outcome)
}

func TestWalkChain_DepthBound(t *testing.T) {
	ids := make([]*identity, MaxChainDepth+1)
	for i := range ids {
		ids[i] = newIdentity(t, testutil.KeyTypeEd25519)
	}

	certs := make([]*model.Certificate, len(ids))
	certs[0] = selfSigned(t, "link-0", ids[0])
	for i := 1; i < len(ids); i++ {
		c, err := Issue(fmt.Sprintf("link-%d", i), ids[i].pubText, certs[i-1], ids[i-1].key)
		require.NoError(t, err)
		certs[i] = c
	}

	chain := WalkChain(certs[len(certs)-1], mapResolver(certs...), nil)
	assert.Equal(t, ChainBroken, chain.State)
	assert.Contains(t, chain.Reason, "exceeds")
	assert.Len(t, chain.Path, MaxChainDepth)

	chain = WalkChain(certs[MaxChainDepth-1], mapResolver(certs...), nil)
	assert.Equal(t, ChainChained, chain.State, chain.Reason)
}

func TestVerify_ChainValidation(t *testing.T) {
	root := newIdentity(t, testutil.KeyTypeEd25519)
	bob := newIdentity(t, testutil.KeyTypeEd25519)

	rootCert := selfSigned(t, "Root CA", root)
	bobCert, err := Issue("Bob", bob.pubText, rootCert, root.key)
	require.NoError(t, err)

	ds, err := SignDocument([]byte("doc"), bob.key, bobCert)
	require.NoError(t, err)

	res, err := Verify([]byte("doc"), ds, store(bobCert, rootCert), WithChainValidation(mapResolver(bobCert, rootCert)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthentic, res.Outcome)
	require.NotNil(t, res.Chain)
	assert.Equal(t, ChainChained, res.Chain.State)

	res, err = Verify([]byte("doc"), ds, store(bobCert), WithChainValidation(mapResolver(bobCert)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBrokenChain, res.Outcome)
	assert.Equal(t, ChainBroken, res.Chain.State)

	// Without chain validation the missing root does not matter.
	res, err = Verify([]byte("doc"), ds, store(bobCert))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthentic, res.Outcome)

	// A compromised document is reported before any chain walk.
	res, err = Verify([]byte("tampered"), ds, store(bobCert), WithChainValidation(mapResolver(bobCert)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompromised, res.Outcome)
	assert.Nil(t, res.Chain)
}

func TestChainStateString(t *testing.T) {
	assert.Equal(t, "root", ChainRoot.String())
	assert.Equal(t, "chained", ChainChained.String())
	assert.Equal(t, "broken", ChainBroken.String())
	assert.Equal(t, "unknown", ChainState(9).String())
}
