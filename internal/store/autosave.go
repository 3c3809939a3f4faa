package store

import (
	"time"

	"go.uber.org/zap"
)

// Autosaver periodically saves the store when it is dirty. Stop is
// signal-and-join: it interrupts the wait, flushes a final pending save, and
// returns once the loop has exited.
type Autosaver struct {
	store    *Store
	interval time.Duration
	log      *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewAutosaver creates an autosaver checking the dirty flag every interval.
func NewAutosaver(st *Store, interval time.Duration, logger *zap.Logger) *Autosaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{
		store:    st,
		interval: interval,
		log:      logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the autosave loop.
func (a *Autosaver) Start() {
	go a.run()
}

func (a *Autosaver) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.saveIfDirty()
		case <-a.stop:
			a.saveIfDirty()
			return
		}
	}
}

func (a *Autosaver) saveIfDirty() {
	if !a.store.Dirty() {
		return
	}
	if err := a.store.Save(); err != nil {
		a.log.Error("autosave failed", zap.Error(err))
	}
}

// Stop signals the loop and waits for it to finish, flushing any pending
// save first. Safe to call exactly once.
func (a *Autosaver) Stop() {
	close(a.stop)
	<-a.done
}
