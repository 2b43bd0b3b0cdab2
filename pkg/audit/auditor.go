// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
)

// Event is one audit record. One event is emitted per operation regardless
// of outcome, with enough context to reconstruct the decision; the raw
// credential is never included.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type classifies the event (see EventType constants).
	Type string `json:"type"`

	// Action is the route's declared audit action (e.g. "tickets:refund").
	Action string `json:"action,omitempty"`

	// Resource is the route's declared resource.
	Resource string `json:"resource,omitempty"`

	// ActorID is the resolved caller's subject, empty for pre-auth events.
	ActorID string `json:"actor_id,omitempty"`

	// Outcome is success, denied, or error.
	Outcome string `json:"outcome"`

	// Stage names the pipeline stage that denied the request, when denied.
	Stage string `json:"stage,omitempty"`

	// Reason is a human-readable explanation for non-success outcomes.
	Reason string `json:"reason,omitempty"`

	// SourceIP is the caller's remote address.
	SourceIP string `json:"source_ip,omitempty"`

	// UserAgent is the caller's user agent (recorded pre-auth for login
	// initiations).
	UserAgent string `json:"user_agent,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Extra carries event-type-specific fields.
	Extra map[string]string `json:"extra,omitempty"`
}

// Auditor emits audit events to the structured log.
type Auditor struct {
	log       *slog.Logger
	component string
}

// NewAuditor creates an Auditor. If log is nil the package logger is used.
func NewAuditor(component string, log *slog.Logger) *Auditor {
	if log == nil {
		log = logger.Get()
	}
	return &Auditor{log: log, component: component}
}

// Emit records the event. ID and Timestamp are filled in when unset.
func (a *Auditor) Emit(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	a.log.Info("audit_event",
		"component", a.component,
		"audit", event,
	)
}
