// Package alert broadcasts breakout notifications to configured
// destinations.
package alert

import (
	"context"
	"errors"
	"fmt"
)

// Notification describes a universe whose playing count just broke out
// of its baseline.
type Notification struct {
	UniverseID int64    `json:"universe_id"`
	Name       string   `json:"name"`
	DZ         float64  `json:"dz"`
	Sustain    *float64 `json:"sustain,omitempty"`
	Wilson     *float64 `json:"wilson,omitempty"`
	Playing    *int64   `json:"playing,omitempty"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
