package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/vocalise-app/vocalise/internal/storage"
)

// probeKey is read by the storage checker; it never exists, a clean
// not-found answer proves the backend round trip works.
const probeKey = "healthz-probe"

// Storage returns a checker that verifies the persistence backend
// answers reads. A not-found result is healthy; any other error is not.
func Storage(store storage.Store) Checker {
	return Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			_, err := store.GetRecording(ctx, probeKey)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("storage read probe: %w", err)
			}
			return nil
		},
	}
}

// Capture returns a checker reporting whether the microphone source is
// usable. ready is consulted on each probe.
func Capture(ready func() error) Checker {
	return Checker{
		Name: "capture",
		Check: func(ctx context.Context) error {
			return ready()
		},
	}
}
