package imapsrc

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog/log"

	"mailwatch/internal/config"
	"mailwatch/internal/watch"
)

// Source watches a mailbox over IMAP. The server assigns strictly increasing
// UIDs to arriving messages, so new mail is everything above a monotonic
// cursor. Change signals come from IDLE; a signal only triggers a scan, the
// scan itself re-derives "new since cursor" from the server.
type Source struct {
	cfg        config.IMAPConfig
	dispatcher watch.Dispatcher
	client     *imapclient.Client
	cursor     *watch.CursorTracker
	closing    atomic.Bool
}

// New connects, selects the watched folder and seeds the cursor.
// savedCursor restores a previous run's high-water mark; zero means seed
// from the server's next-UID so only mail arriving after startup is
// reported.
func New(cfg config.IMAPConfig, d watch.Dispatcher, savedCursor uint32) (*Source, error) {
	if cfg.Host == "" {
		return nil, &config.Error{Source: "imap", Field: "host"}
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, &config.Error{Source: "imap", Field: "username/password"}
	}

	s := &Source{cfg: cfg, dispatcher: d}
	if err := s.connect(); err != nil {
		return nil, err
	}

	data, err := s.selectFolder()
	if err != nil {
		s.client.Close()
		return nil, err
	}

	seed := savedCursor
	if seed == 0 && data.UIDNext > 0 {
		seed = uint32(data.UIDNext) - 1
	}
	s.cursor = watch.NewCursorTracker(seed)

	log.Info().
		Str("folder", cfg.Folder).
		Uint32("cursor", s.cursor.Last()).
		Msg("IMAP source ready")
	return s, nil
}

func (s *Source) Name() string {
	return "imap"
}

func (s *Source) connect() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var client *imapclient.Client
	var err error
	switch {
	case s.cfg.SSL:
		client, err = imapclient.DialTLS(addr, &imapclient.Options{})
	case s.cfg.StartTLS:
		client, err = imapclient.DialStartTLS(addr, &imapclient.Options{})
	default:
		client, err = imapclient.DialInsecure(addr, &imapclient.Options{})
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}

	if err := client.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		client.Close()
		return fmt.Errorf("IMAP authentication failed: %w", err)
	}

	s.client = client
	return nil
}

func (s *Source) selectFolder() (*imap.SelectData, error) {
	data, err := s.client.Select(s.cfg.Folder, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", s.cfg.Folder, err)
	}
	return data, nil
}

func (s *Source) supportsIdle() bool {
	caps, err := s.client.Capability().Wait()
	if err != nil {
		return false
	}
	return caps.Has(imap.CapIdle)
}

// Run maintains the IDLE subscription and calls trigger on every mailbox
// change signal. Triggers run synchronously between IDLE cycles so the scan
// never races the idle command on the shared connection. Servers without
// IDLE get a plain poll loop at the keep-alive interval.
func (s *Source) Run(ctx context.Context, trigger func()) error {
	// Process whatever arrived between cursor seeding and now.
	trigger()

	idleTimeout := clampKeepAlive(s.cfg.IdleKeepAlive)

	if !s.supportsIdle() {
		log.Warn().Str("source", s.Name()).Msg("Server does not support IDLE, falling back to polling")
		return s.runPoll(ctx, trigger, idleTimeout)
	}

	log.Info().Dur("keepalive", idleTimeout).Str("source", s.Name()).Msg("IDLE mode started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		idleCmd, err := s.client.Idle()
		if err != nil {
			if s.closing.Load() || ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("source", s.Name()).Msg("IDLE start failed")
			if rerr := s.reconnect(ctx); rerr != nil {
				return rerr
			}
			continue
		}

		done := make(chan error, 1)
		go func() {
			done <- idleCmd.Wait()
		}()

		timer := time.NewTimer(idleTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			idleCmd.Close()
			<-done
			return nil

		case <-timer.C:
			// Keep-alive: leave IDLE, NOOP below refreshes the session.
			idleCmd.Close()
			<-done

		case err := <-done:
			timer.Stop()
			idleCmd.Close()
			if err != nil {
				if s.closing.Load() || ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Str("source", s.Name()).Msg("IDLE failed")
				if rerr := s.reconnect(ctx); rerr != nil {
					return rerr
				}
				continue
			}
			trigger()
		}

		if err := s.client.Noop().Wait(); err != nil {
			if s.closing.Load() || ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("source", s.Name()).Msg("NOOP failed")
			if rerr := s.reconnect(ctx); rerr != nil {
				return rerr
			}
		}
	}
}

func (s *Source) runPoll(ctx context.Context, trigger func(), interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			trigger()
			if err := s.client.Noop().Wait(); err != nil {
				if s.closing.Load() || ctx.Err() != nil {
					return nil
				}
				if rerr := s.reconnect(ctx); rerr != nil {
					return rerr
				}
			}
		}
	}
}

// Scan lists everything above the cursor and dispatches it in ascending UID
// order. The cursor advances per item only after a successful hand-off, so a
// failed notification leaves the item (and everything after it) to be
// re-offered on the next trigger.
func (s *Source) Scan(ctx context.Context) error {
	candidates, err := s.listSince(s.cursor.Last())
	if err != nil {
		return fmt.Errorf("list since uid %d: %w", s.cursor.Last(), err)
	}
	if len(candidates) == 0 {
		return nil
	}

	delivered, err := watch.DispatchOrdered(ctx, s.dispatcher, s.cursor, candidates)
	if delivered > 0 {
		log.Info().
			Int("count", delivered).
			Uint32("cursor", s.cursor.Last()).
			Str("source", s.Name()).
			Msg("Dispatched new messages")
	}
	return err
}

func (s *Source) listSince(last uint32) ([]watch.Candidate, error) {
	var set imap.UIDSet
	set.AddRange(imap.UID(last+1), 0)

	msgs, err := s.client.Fetch(set, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
	}).Collect()
	if err != nil {
		return nil, err
	}

	return candidatesSince(msgs, last, s.cfg.PageSize), nil
}

// candidatesSince filters fetched messages down to UIDs strictly above last,
// sorted ascending and capped at pageSize. Servers answer a range like
// "n:*" with the highest existing message even when nothing is new, so the
// UID filter cannot be skipped.
func candidatesSince(msgs []*imapclient.FetchMessageBuffer, last uint32, pageSize int) []watch.Candidate {
	candidates := make([]watch.Candidate, 0, len(msgs))
	for _, buf := range msgs {
		uid := uint32(buf.UID)
		if uid <= last {
			continue
		}

		c := watch.Candidate{
			ID:  strconv.FormatUint(uint64(uid), 10),
			UID: uid,
		}
		if env := buf.Envelope; env != nil {
			c.Subject = env.Subject
			c.Date = env.Date
			if len(env.From) > 0 {
				c.Sender = env.From[0].Name
				c.Address = env.From[0].Addr()
			}
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].UID < candidates[j].UID })

	if pageSize > 0 && len(candidates) > pageSize {
		candidates = candidates[:pageSize]
	}
	return candidates
}

// reconnect re-establishes the connection with capped exponential backoff.
// The cursor is untouched; the next scan re-derives new mail from it.
func (s *Source) reconnect(ctx context.Context) error {
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		wait := time.Duration(1<<uint(attempt)) * time.Second
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}

		log.Warn().
			Dur("wait", wait).
			Int("attempt", attempt+1).
			Int("max", s.cfg.MaxRetries).
			Str("source", s.Name()).
			Msg("Connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		s.client.Close()
		if err := s.connect(); err != nil {
			log.Error().Err(err).Str("source", s.Name()).Msg("Reconnect failed")
			continue
		}
		if _, err := s.selectFolder(); err != nil {
			s.client.Close()
			log.Error().Err(err).Str("source", s.Name()).Msg("Reselect failed")
			continue
		}

		log.Info().Str("source", s.Name()).Msg("Reconnected")
		return nil
	}

	return fmt.Errorf("failed to reconnect after %d attempts", s.cfg.MaxRetries)
}

func (s *Source) Snapshot() (uint32, []string) {
	return s.cursor.Last(), nil
}

func (s *Source) Close() error {
	s.closing.Store(true)
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// clampKeepAlive bounds the IDLE refresh interval to the 1..29 minute range
// RFC 2177 allows.
func clampKeepAlive(seconds int) time.Duration {
	if seconds < 60 {
		seconds = 60
	}
	if seconds > 1740 {
		seconds = 1740
	}
	return time.Duration(seconds) * time.Second
}
