package watch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// StateStore persists a source's cursor and dedup window after each
// successful scan. Implementations may be nil'd out entirely; persistence is
// optional.
type StateStore interface {
	Save(source string, cursor uint32, seen []string) error
}

// Manager drives all registered sources: poll sources on their cron
// schedule, push sources from backend change signals. Each source gets its
// own ScanGuard; sources never share cursor, cache, or token state, so no
// cross-source locking exists.
type Manager struct {
	cron    *cron.Cron
	polls   []PollSource
	pushes  []PushSource
	guards  map[string]*ScanGuard
	store   StateStore
	closing atomic.Bool
}

// NewManager creates a Manager. store may be nil, in which case no state is
// persisted.
func NewManager(store StateStore) *Manager {
	return &Manager{
		cron:   cron.New(),
		guards: make(map[string]*ScanGuard),
		store:  store,
	}
}

func (m *Manager) RegisterPoll(src PollSource) {
	m.polls = append(m.polls, src)
	m.guards[src.Name()] = &ScanGuard{}
	log.Info().Str("source", src.Name()).Str("schedule", src.Schedule()).Msg("Registered poll source")
}

func (m *Manager) RegisterPush(src PushSource) {
	m.pushes = append(m.pushes, src)
	m.guards[src.Name()] = &ScanGuard{}
	log.Info().Str("source", src.Name()).Msg("Registered push source")
}

// Sources returns the number of registered sources.
func (m *Manager) Sources() int {
	return len(m.polls) + len(m.pushes)
}

// Run blocks until ctx is cancelled. On shutdown it stops the cron runner,
// waits for push loops to exit, and closes all sources. One already
// in-flight scan may complete or fail without affecting exit.
func (m *Manager) Run(ctx context.Context) error {
	for _, src := range m.polls {
		src := src
		if _, err := m.cron.AddFunc(src.Schedule(), func() { m.scan(ctx, src) }); err != nil {
			return fmt.Errorf("schedule %q for source %s: %w", src.Schedule(), src.Name(), err)
		}
	}

	var wg sync.WaitGroup
	for _, src := range m.pushes {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(ctx, func() { m.scan(ctx, src) }); err != nil {
				if m.closing.Load() {
					log.Debug().Err(err).Str("source", src.Name()).Msg("Push loop ended during shutdown")
					return
				}
				log.Error().Err(err).Str("source", src.Name()).Msg("Push loop ended")
			}
		}()
	}

	// Initial poll before the first cron boundary.
	for _, src := range m.polls {
		m.scan(ctx, src)
	}

	m.cron.Start()

	<-ctx.Done()
	m.closing.Store(true)
	log.Info().Msg("Stopping scheduler")

	stopped := m.cron.Stop()
	<-stopped.Done()

	for _, src := range m.polls {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Msg("Close failed")
		}
	}
	for _, src := range m.pushes {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Msg("Close failed")
		}
	}
	wg.Wait()

	return nil
}

// scan runs one guarded scan for src. A trigger arriving while a scan is in
// flight is dropped; the next trigger re-derives "new since cursor" from
// backend truth, so no single trigger is load-bearing.
func (m *Manager) scan(ctx context.Context, src Source) {
	guard := m.guards[src.Name()]
	if !guard.TryAcquire() {
		log.Debug().Str("source", src.Name()).Msg("Scan in flight, dropping trigger")
		return
	}
	defer guard.Release()

	if err := src.Scan(ctx); err != nil {
		if m.closing.Load() {
			log.Debug().Err(err).Str("source", src.Name()).Msg("Scan ended during shutdown")
			return
		}
		log.Error().Err(err).Str("source", src.Name()).Msg("Scan failed")
		return
	}

	if m.store != nil {
		cursor, seen := src.Snapshot()
		if err := m.store.Save(src.Name(), cursor, seen); err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Msg("Failed to save state")
		}
	}
}
