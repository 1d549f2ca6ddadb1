// Package analytics tracks launcher lifecycle events through the tracking
// vendor. Events are staged in a durable queue and delivered by a
// background daemon, so a crashed or offline launcher reports on its next
// run. Tracking is strictly non-fatal to the launch flow.
package analytics

import (
	"context"
)

// AppID identifies this application in every tracked event.
const AppID = "decentraland-launcher-rust"

// Analytics is the tracking surface used by the launch flow. The null
// implementation is substituted when analytics is disabled.
type Analytics interface {
	// Track stages an event for delivery.
	Track(event Event) error
	// AnonymousID is the stable per-user id passed to the client process.
	AnonymousID() string
	// SessionID is the per-run id passed to the client process.
	SessionID() string
	// Close drains pending events within the shutdown deadline and stops
	// the send daemon.
	Close(ctx context.Context) error
}

// Null is the no-op analytics used with --skip-analytics or when no write
// key is configured. It still owns a session id: the client argv needs one.
type Null struct {
	sessionID string
}

func NewNull() *Null {
	return &Null{sessionID: newSessionID()}
}

func (n *Null) Track(Event) error { return nil }

func (n *Null) AnonymousID() string { return "empty" }

func (n *Null) SessionID() string { return n.sessionID }

func (n *Null) Close(context.Context) error { return nil }
