package replay

import (
	"context"
	"log/slog"

	"github.com/candi/dictation/internal/fsm"
	"github.com/candi/dictation/internal/session"
)

// Run plays script through a fresh session until the session settles idle,
// then closes it and returns the final snapshot. onSnapshot, when set,
// receives every published snapshot.
func Run(ctx context.Context, script Script, cfg session.Config, logger *slog.Logger, onSnapshot func(session.Snapshot)) (session.Snapshot, error) {
	facility := NewFacility(script, logger)
	s := session.New(cfg, facility, session.Options{Logger: logger})

	updates, cancel := s.Watch()
	defer cancel()

	s.Start()
	for {
		select {
		case <-ctx.Done():
			final := s.Close()
			return final, ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return s.Close(), nil
			}
			if onSnapshot != nil {
				onSnapshot(snap)
			}
			if snap.State == fsm.StateIdle && !snap.IsListening && facility.Remaining() == 0 {
				return s.Close(), nil
			}
		}
	}
}
