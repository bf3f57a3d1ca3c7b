// Package optimistic implements the mutation protocol shared by the
// respondent runtime and the editor: apply a change locally for zero-latency
// feedback, issue the remote write, and on failure revert the local change
// and reconcile from an authoritative re-fetch.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Mutation describes one optimistic mutation as its four phases. Every phase
// is optional; callers whose local change is already applied set only the
// remote and recovery phases.
type Mutation struct {
	// Name identifies the mutation in logs and wrapped errors.
	Name string
	// Apply mutates local state immediately. An Apply error aborts the
	// mutation before any remote traffic.
	Apply func() error
	// Write issues the corresponding remote write.
	Write func(ctx context.Context) error
	// Revert undoes the specific local mutation after a failed write.
	Revert func()
	// Reconcile replaces local state wholesale from an authoritative
	// re-fetch. It runs after Revert so that convergence is guaranteed even
	// if the revert and the server state have diverged.
	Reconcile func(ctx context.Context) error
}

// Do runs the protocol for one mutation. On write failure the returned error
// wraps the write error; if reconciliation also fails, both errors are
// joined and the caller should treat the state as terminal.
func Do(ctx context.Context, m Mutation) error {
	if m.Apply != nil {
		if err := m.Apply(); err != nil {
			return err
		}
	}
	if m.Write == nil {
		return nil
	}

	err := m.Write(ctx)
	if err == nil {
		return nil
	}
	slog.Error("Optimistic write failed, reverting", "mutation", m.Name, "error", err)

	if m.Revert != nil {
		m.Revert()
	}
	if m.Reconcile != nil {
		if recErr := m.Reconcile(ctx); recErr != nil {
			slog.Error("Optimistic reconcile failed", "mutation", m.Name, "error", recErr)
			return errors.Join(
				fmt.Errorf("%s: %w", m.Name, err),
				fmt.Errorf("%s reconcile: %w", m.Name, recErr),
			)
		}
		slog.Debug("Optimistic reconcile succeeded", "mutation", m.Name)
	}
	return fmt.Errorf("%s: %w", m.Name, err)
}
