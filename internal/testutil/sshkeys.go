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

package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ssh"
)

// KeyType selects the algorithm of a generated test key pair
type KeyType string

const (
	KeyTypeEd25519 KeyType = "ed25519"
	KeyTypeRSA     KeyType = "rsa"
	KeyTypeECDSA   KeyType = "ecdsa"
)

// TestKeyPair is an SSH key pair rendered the way users keep them on disk
type TestKeyPair struct {
	// PrivateKey is the raw private key
	PrivateKey crypto.Signer
	// PrivateText is the OpenSSH ("OPENSSH PRIVATE KEY") PEM encoding
	PrivateText []byte
	// PublicText is the authorized_keys line without a trailing newline
	PublicText string
}

// GenerateKeyPair generates an unencrypted test key pair of the given type.
// The comment is appended to the public key text when non-empty.
func GenerateKeyPair(keyType KeyType, comment string) (*TestKeyPair, error) {
	return GenerateKeyPairWithPassphrase(keyType, comment, nil)
}

// GenerateKeyPairWithPassphrase generates a test key pair whose OpenSSH private
// key text is encrypted with passphrase. A nil passphrase leaves it in clear.
func GenerateKeyPairWithPassphrase(keyType KeyType, comment string, passphrase []byte) (*TestKeyPair, error) {
	priv, err := generate(keyType)
	if err != nil {
		return nil, err
	}

	var block *pem.Block
	if len(passphrase) > 0 {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, comment, passphrase)
	} else {
		block, err = ssh.MarshalPrivateKey(priv, comment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	pubText, err := PublicText(priv.Public(), comment)
	if err != nil {
		return nil, err
	}

	return &TestKeyPair{
		PrivateKey:  priv,
		PrivateText: pem.EncodeToMemory(block),
		PublicText:  pubText,
	}, nil
}

// EncryptedPKCS8 renders priv as an "ENCRYPTED PRIVATE KEY" PEM block
func EncryptedPKCS8(priv crypto.Signer, passphrase []byte) ([]byte, error) {
	der, err := pkcs8.MarshalPrivateKey(priv, passphrase, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PKCS#8: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der}), nil
}

// PublicText renders pub in authorized_keys form
func PublicText(pub crypto.PublicKey, comment string) (string, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to convert public key: %w", err)
	}
	text := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(sshPub)), "\n")
	if comment != "" {
		text += " " + comment
	}
	return text, nil
}

func generate(keyType KeyType) (crypto.Signer, error) {
	switch keyType {
	case KeyTypeEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	case KeyTypeRSA:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		return priv, err
	case KeyTypeECDSA:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		return priv, err
	default:
		return nil, fmt.Errorf("unsupported key type: %s", keyType)
	}
}
