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

// Package truststore reads the operator-curated directory of trusted
// certificates. The store is scanned afresh on every call: there is no index
// and no cache, so out-of-band edits are visible immediately.
//
// Entries are visited in lexicographic key order. Only top-level entries with
// the certificate extension (or the legacy misspelling) are considered;
// entries that cannot be read or parsed are skipped and never reported to
// the caller.
package truststore

import (
	"errors"
	"fmt"
	"iter"

	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sshtrust/pkg/metrics"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/storage"
	"github.com/jeremyhahn/go-sshtrust/pkg/storage/file"
	"github.com/jeremyhahn/go-sshtrust/pkg/storage/memory"
	"github.com/jeremyhahn/go-sshtrust/pkg/validation"
	"github.com/spf13/afero"
)

var (
	// ErrNotFound is returned when no trusted certificate carries the
	// requested subject, or when a named entry does not exist.
	ErrNotFound = errors.New("truststore: not found")

	// ErrExists is returned by Add when an entry of the same name exists.
	ErrExists = errors.New("truststore: entry already exists")
)

// Store is a read-mostly view over a storage backend of certificate records.
type Store struct {
	backend storage.Backend
	logger  logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report skipped entries.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Store over backend.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a Store over an existing directory on the OS filesystem.
func Open(dir string, opts ...Option) (*Store, error) {
	return OpenFs(afero.NewOsFs(), dir, opts...)
}

// OpenFs returns a Store over an existing directory on fsys. The directory
// is never created; a missing directory or a plain file fails with
// model.ErrIO.
func OpenFs(fsys afero.Fs, dir string, opts ...Option) (*Store, error) {
	backend, err := file.Open(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: trust store %q: %v", model.ErrIO, dir, err)
	}
	return New(backend, opts...), nil
}

// FromTexts returns an in-memory Store holding the given certificate texts in
// the given order. Texts that do not parse are kept and skipped on scan, the
// same as unparseable files in a directory.
func FromTexts(texts [][]byte, opts ...Option) *Store {
	backend := memory.New()
	for i, text := range texts {
		// memory backend only fails when closed or for an empty key
		_ = backend.Put(storage.CertificateKey(fmt.Sprintf("%08d", i)), text, nil)
	}
	return New(backend, opts...)
}

// Entries returns the parseable certificates of the store keyed by entry
// name, in lexicographic order. Listing happens eagerly so an unreadable
// store is reported here; each entry is read and parsed lazily as the
// sequence is consumed.
func (s *Store) Entries() (iter.Seq2[string, *model.Certificate], error) {
	keys, err := storage.ListCertificates(s.backend)
	if err != nil {
		return nil, fmt.Errorf("%w: list trust store: %v", model.ErrIO, err)
	}

	return func(yield func(string, *model.Certificate) bool) {
		for _, key := range keys {
			cert, ok := s.load(key)
			if !ok {
				continue
			}
			if !yield(key, cert) {
				return
			}
		}
	}, nil
}

// Certificates is Entries without the entry names, the shape consumed by
// trust resolution.
func (s *Store) Certificates() (iter.Seq[*model.Certificate], error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	return func(yield func(*model.Certificate) bool) {
		for _, cert := range entries {
			if !yield(cert) {
				return
			}
		}
	}, nil
}

// Lookup returns the first certificate, in key order, whose subject
// credentials equal subject. It fails with ErrNotFound when none does.
func (s *Store) Lookup(subject string) (*model.Certificate, error) {
	certs, err := s.Certificates()
	if err != nil {
		return nil, err
	}
	for cert := range certs {
		if cert.SubjectCredentials == subject {
			return cert, nil
		}
	}
	return nil, fmt.Errorf("%w: no certificate for %q", ErrNotFound, subject)
}

// All returns every certificate whose subject credentials equal subject.
func (s *Store) All(subject string) ([]*model.Certificate, error) {
	certs, err := s.Certificates()
	if err != nil {
		return nil, err
	}
	var matches []*model.Certificate
	for cert := range certs {
		if cert.SubjectCredentials == subject {
			matches = append(matches, cert)
		}
	}
	return matches, nil
}

// Add stores cert under name, appending the certificate extension unless
// name already ends in it, and returns the entry key. Only signed certificates are
// accepted and existing entries are never overwritten.
func (s *Store) Add(name string, cert *model.Certificate) (string, error) {
	if cert == nil || cert.Signature == nil {
		return "", fmt.Errorf("%w: certificate is not signed", model.ErrParse)
	}

	key := storage.CertificateKey(name)
	exists, err := s.backend.Exists(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrExists, key)
	}

	data, err := cert.Marshal()
	if err != nil {
		return "", err
	}
	if err := s.backend.Put(key, data, storage.DefaultOptions()); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrIO, err)
	}

	s.logger.Info("certificate added to trust store",
		logger.String("entry", key),
		logger.String("subject", validation.SanitizeForLog(cert.SubjectCredentials)))
	return key, nil
}

// Remove deletes the entry called name. Names map to keys as in Add.
func (s *Store) Remove(name string) error {
	key := storage.CertificateKey(name)
	if err := s.backend.Delete(key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	s.logger.Info("certificate removed from trust store", logger.String("entry", key))
	return nil
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) load(key string) (*model.Certificate, bool) {
	data, err := s.backend.Get(key)
	if err != nil {
		s.skip(key, metrics.SkipUnreadable, err)
		return nil, false
	}
	cert, err := model.ParseSignedCertificate(data)
	if err != nil {
		s.skip(key, metrics.SkipUnparseable, err)
		return nil, false
	}
	return cert, true
}

func (s *Store) skip(key, reason string, err error) {
	metrics.RecordTrustStoreSkip(reason)
	s.logger.Debug("skipping trust store entry",
		logger.String("entry", key),
		logger.String("reason", reason),
		logger.Error(err))
}
