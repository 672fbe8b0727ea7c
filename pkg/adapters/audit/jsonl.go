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

package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// JSONLAdapter appends one JSON object per line to a file.
type JSONLAdapter struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
	f    afero.File
}

// NewJSONLAdapter creates or opens path for appending. Missing parent
// directories are created.
func NewJSONLAdapter(fsys afero.Fs, path string) (*JSONLAdapter, error) {
	if path == "" {
		return nil, fmt.Errorf("audit file path cannot be empty")
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	return &JSONLAdapter{fs: fsys, path: path, f: f}, nil
}

// LogEvent appends event as a single JSON line
func (a *JSONLAdapter) LogEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	stamp(event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return errors.New("audit file is closed")
	}
	_, err = a.f.Write(data)
	return err
}

// Close closes the underlying file. Further events are rejected.
func (a *JSONLAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// ReadJSONL reads the events of a JSONL audit file matching query. Lines
// that do not decode are skipped.
func ReadJSONL(fsys afero.Fs, path string, query *Query) ([]*Event, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var events []*Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return filter(events, query), nil
}
