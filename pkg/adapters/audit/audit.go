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

// Package audit provides an adapter interface for the sshtrust audit trail,
// a record of every certificate issued, document signed or checked and trust
// store change, kept apart from diagnostic logs.
//
// This follows the same pattern as the logger adapter: a small interface
// that applications can implement, with a JSONL file adapter, an in-memory
// adapter and a no-op default.
package audit

import (
	"context"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	// Certificate Events
	EventCertIssue EventType = "cert.issue"
	EventChainWalk EventType = "cert.chain"

	// Document Events
	EventDocumentSign  EventType = "document.sign"
	EventDocumentCheck EventType = "document.check"

	// Trust Store Events
	EventTrustAdd    EventType = "truststore.add"
	EventTrustRemove EventType = "truststore.remove"
)

// EventOutcome indicates the result of an operation
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
)

// Event represents a single audit log entry
type Event struct {
	// ID is a unique identifier for this audit event
	ID string `json:"id"`

	// Timestamp when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// EventType categorizes the event
	EventType EventType `json:"event_type"`

	// Outcome indicates whether the operation succeeded
	Outcome EventOutcome `json:"outcome"`

	// Subject is the credentials the event is about: the issued subject,
	// the signer or the resolved signatory
	Subject string `json:"subject,omitempty"`

	// Resource is the file or trust store entry acted upon
	Resource string `json:"resource,omitempty"`

	// Result carries the verification outcome, chain state or error message
	Result string `json:"result,omitempty"`

	// CorrelationID ties the event to the run's log lines
	CorrelationID string `json:"correlation_id,omitempty"`

	// Metadata stores additional context
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Adapter records audit events.
type Adapter interface {
	// LogEvent records an audit event. ID and Timestamp are filled in when
	// empty.
	LogEvent(ctx context.Context, event *Event) error

	// Close flushes and releases the adapter
	Close() error
}

// Query filters events read back from an adapter. Zero fields match
// everything.
type Query struct {
	EventTypes    []EventType
	Outcome       EventOutcome
	CorrelationID string
	Limit         int
}

// Matches reports whether event satisfies the query
func (q *Query) Matches(event *Event) bool {
	if q == nil {
		return true
	}
	if len(q.EventTypes) > 0 {
		found := false
		for _, t := range q.EventTypes {
			if event.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Outcome != "" && event.Outcome != q.Outcome {
		return false
	}
	if q.CorrelationID != "" && event.CorrelationID != q.CorrelationID {
		return false
	}
	return true
}

// NopAdapter discards every event
type NopAdapter struct{}

// NewNop returns an adapter that discards events
func NewNop() Adapter { return NopAdapter{} }

func (NopAdapter) LogEvent(context.Context, *Event) error { return nil }
func (NopAdapter) Close() error                           { return nil }
