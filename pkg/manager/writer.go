package manager

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/corpusgraph/corpusdb/pkg/loader"
	"github.com/corpusgraph/corpusdb/pkg/snapshot"
)

// writerHandle tracks one corpus's in-flight background writer so a later
// ApplyUpdate on the same corpus can cancel and join it before starting
// its own write (spec §4.5: "apply_update cancels and joins any prior
// writer for the same corpus before starting").
type writerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// cancelWriter cancels and waits for any background writer in flight for
// name to exit (spec §4.5 step 1). A no-op if none is running.
func (m *Manager) cancelWriter(name string) {
	m.writerMu.Lock()
	h, ok := m.writers[name]
	m.writerMu.Unlock()
	if !ok {
		return
	}
	h.cancel()
	<-h.done
}

// scheduleWriter starts a background writer for name (spec §4.5 step 5):
// "The background writer runs under an exclusive lock too but starts only
// after the scheduling thread releases the lock." It persists the
// just-applied update via the crash-safe rotate/save/remove-backup
// sequence, observing cancellation between each step.
func (m *Manager) scheduleWriter(name string) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &writerHandle{cancel: cancel, done: make(chan struct{})}

	m.writerMu.Lock()
	m.writers[name] = h
	m.writerMu.Unlock()

	go func() {
		defer close(h.done)
		defer func() {
			m.writerMu.Lock()
			if m.writers[name] == h {
				delete(m.writers, name)
			}
			m.writerMu.Unlock()
		}()
		m.runWriter(ctx, name)
	}()
}

// runWriter takes name's exclusive lock and, unless already cancelled,
// persists a fresh snapshot.
func (m *Manager) runWriter(ctx context.Context, name string) {
	l := m.loaderFor(name)
	l.Lock()
	defer l.Unlock()
	if l.Status() != loader.StatusLoaded {
		return
	}
	if err := saveWithRotation(ctx, l); err != nil && ctx.Err() == nil {
		log.Printf("manager: background save of %s failed: %v", name, err)
	}
}

// saveWithRotation implements spec §4.5's crash-safe write sequence:
// rotate current/ to backup/, write the new current/, then remove
// backup/, checking ctx for cancellation between each step (spec §4.5:
// "Between each step it observes a cancellation token"). Cancellation
// leaves backup/ present for the next load to recover from -- not an
// error to the caller (spec §7). Callers must hold the loader's
// exclusive lock.
func saveWithRotation(ctx context.Context, l *loader.Loader) error {
	dir := l.Dir()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := snapshot.RotateToBackup(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate to backup: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := l.Save(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return snapshot.RemoveBackup(dir)
}

// RunBackgroundWriter is a periodic fallback sweep: it schedules a writer
// for every loaded corpus that does not already have one in flight, until
// ctx is cancelled. Durability after ApplyUpdate does not depend on this
// sweep -- ApplyUpdate schedules its own per-corpus writer directly (spec
// §4.5) -- this exists to eventually flush corpora that picked up a
// pending update log some other way (e.g. a corpus loaded with a leftover
// log from a prior process that crashed before its own writer finished).
func (m *Manager) RunBackgroundWriter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.cacheMu.Lock()
	names := make([]string, 0, len(m.loaders))
	for name, l := range m.loaders {
		if l.Status() == loader.StatusLoaded {
			names = append(names, name)
		}
	}
	m.cacheMu.Unlock()

	for _, name := range names {
		m.writerMu.Lock()
		_, inFlight := m.writers[name]
		m.writerMu.Unlock()
		if inFlight {
			continue
		}
		m.scheduleWriter(name)
	}
}
