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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAdapter implements Adapter with in-memory storage.
// This implementation is thread-safe and suitable for development and
// testing. Events are lost on process exit.
type MemoryAdapter struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryAdapter creates a new in-memory audit adapter
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{}
}

// LogEvent records an audit event in memory
func (m *MemoryAdapter) LogEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	stamp(event)

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// Events returns the recorded events matching query in the order they were
// logged.
func (m *MemoryAdapter) Events(query *Query) []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.events, query)
}

// Close implements Adapter
func (m *MemoryAdapter) Close() error { return nil }

// stamp fills in the ID and timestamp of an event when absent
func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

func filter(events []*Event, query *Query) []*Event {
	var results []*Event
	for _, e := range events {
		if !query.Matches(e) {
			continue
		}
		results = append(results, e)
		if query != nil && query.Limit > 0 && len(results) == query.Limit {
			break
		}
	}
	return results
}
