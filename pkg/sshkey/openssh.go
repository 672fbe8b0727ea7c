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

package sshkey

import (
	"bytes"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ssh"
)

// encryptedPKCS8BlockType is the PEM block type of a password protected
// PKCS#8 key, which the ssh package does not decode itself.
const encryptedPKCS8BlockType = "ENCRYPTED PRIVATE KEY"

// OpenSSH implements Provider on top of golang.org/x/crypto/ssh.
//
// Supported private key encodings:
//   - OpenSSH ("OPENSSH PRIVATE KEY"), optionally passphrase protected
//   - PKCS#1, SEC 1 and PKCS#8 PEM
//   - encrypted PKCS#8 PEM ("ENCRYPTED PRIVATE KEY")
//
// RSA keys sign with rsa-sha2-512; other key types use their only algorithm.
type OpenSSH struct {
	rand io.Reader
}

// NewOpenSSH returns an OpenSSH provider reading randomness from crypto/rand.
func NewOpenSSH() *OpenSSH {
	return &OpenSSH{rand: rand.Reader}
}

// NewOpenSSHWithRand returns an OpenSSH provider reading randomness from r.
func NewOpenSSHWithRand(r io.Reader) *OpenSSH {
	return &OpenSSH{rand: r}
}

// LoadPrivateKey implements Provider.
func (p *OpenSSH) LoadPrivateKey(text []byte, passphrase []byte) (PrivateKey, error) {
	raw, err := parseRawPrivateKey(text, passphrase)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrKey, err)
	}
	return &privateKey{signer: signer, rand: p.rand}, nil
}

// LoadPublicKey implements Provider.
func (p *OpenSSH) LoadPublicKey(text string) (PublicKey, error) {
	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", model.ErrKey, err)
	}
	return &publicKey{key: pub, comment: comment}, nil
}

func parseRawPrivateKey(text []byte, passphrase []byte) (any, error) {
	if block, _ := pem.Decode(text); block != nil && block.Type == encryptedPKCS8BlockType {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("%w: private key is passphrase protected", model.ErrKey)
		}
		key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrKey, err)
		}
		return key, nil
	}

	raw, err := ssh.ParseRawPrivateKey(text)
	if err == nil {
		return raw, nil
	}
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("%w: %v", model.ErrKey, err)
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: private key is passphrase protected", model.ErrKey)
	}

	raw, err = ssh.ParseRawPrivateKeyWithPassphrase(text, passphrase)
	if err != nil {
		if errors.Is(err, x509.IncorrectPasswordError) {
			return nil, fmt.Errorf("%w: incorrect passphrase", model.ErrKey)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrKey, err)
	}
	return raw, nil
}

type privateKey struct {
	signer ssh.Signer
	rand   io.Reader
}

func (k *privateKey) Sign(data []byte) ([]byte, error) {
	var (
		sig *ssh.Signature
		err error
	)
	if as, ok := k.signer.(ssh.AlgorithmSigner); ok && k.signer.PublicKey().Type() == ssh.KeyAlgoRSA {
		sig, err = as.SignWithAlgorithm(k.rand, data, ssh.KeyAlgoRSASHA512)
	} else {
		sig, err = k.signer.Sign(k.rand, data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", model.ErrCrypto, err)
	}
	return ssh.Marshal(sig), nil
}

func (k *privateKey) Public() PublicKey {
	return &publicKey{key: k.signer.PublicKey()}
}

type publicKey struct {
	key     ssh.PublicKey
	comment string
}

func (k *publicKey) Verify(data, signature []byte) (bool, error) {
	var sig ssh.Signature
	if err := ssh.Unmarshal(signature, &sig); err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	if err := k.key.Verify(data, &sig); err != nil {
		return false, nil
	}
	return true, nil
}

func (k *publicKey) Text() string {
	text := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(k.key)), "\n")
	if k.comment != "" {
		text += " " + k.comment
	}
	return text
}

func (k *publicKey) Equal(other PublicKey) bool {
	o, ok := other.(*publicKey)
	if !ok || o == nil {
		return false
	}
	return bytes.Equal(k.key.Marshal(), o.key.Marshal())
}
