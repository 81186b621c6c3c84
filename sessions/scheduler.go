package sessions

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-steam-sessions/tokencache"
)

// Adaptive check intervals, chosen from the access token's remaining
// lifetime. Long intervals while healthy keep network traffic down; short
// intervals near expiry bound staleness. The unknown-state default also caps
// the worst-case retry latency for a DEAD account.
const (
	intervalHealthy  = 3 * time.Hour
	intervalClose    = time.Hour
	intervalCritical = 10 * time.Minute
	intervalUnknown  = 6 * time.Hour
)

// NextCheckInterval computes the scheduler's next wake interval from the
// current token record. A nil or unparseable record yields the conservative
// default.
func NextCheckInterval(record *tokencache.TokenRecord) time.Duration {
	if record == nil || record.AccessTokenExp.IsZero() {
		return intervalUnknown
	}
	remaining := record.AccessTokenRemaining()
	switch {
	case remaining > 6*time.Hour:
		return intervalHealthy
	case remaining > time.Hour:
		return intervalClose
	default:
		// Includes already-expired tokens.
		return intervalCritical
	}
}

// refreshScheduler keeps one account's session alive from the background:
// it wakes on an adaptive interval, refreshes proactively before expiry, and
// recovers dead sessions. One scheduler goroutine runs per authenticated
// account.
type refreshScheduler struct {
	manager *Manager
	session *accountSession
	stop    chan struct{}
	log     zerolog.Logger
}

// startSchedulerLocked launches the refresh scheduler for a session. Must be
// called with the manager mutex held.
func (m *Manager) startSchedulerLocked(session *accountSession) {
	scheduler := &refreshScheduler{
		manager: m,
		session: session,
		stop:    make(chan struct{}),
		log: m.log.With().
			Str("component", "refresh-scheduler").
			Str("account", session.account.Name).
			Logger(),
	}
	session.scheduler = scheduler

	m.schedWG.Add(1)
	go scheduler.run()
	scheduler.log.Info().Msg("Refresh scheduler started")
}

// requestStop signals the scheduler to exit. The select in run makes the
// wait interruptible, so shutdown latency is not bounded by the longest
// backoff interval.
func (rs *refreshScheduler) requestStop() {
	close(rs.stop)
}

func (rs *refreshScheduler) run() {
	defer rs.manager.schedWG.Done()

	for {
		interval := rs.nextInterval()
		rs.log.Debug().Dur("interval", interval).Msg("Next refresh check scheduled")

		timer := time.NewTimer(interval)
		select {
		case <-rs.stop:
			timer.Stop()
			rs.log.Info().Msg("Refresh scheduler stopped")
			return
		case <-timer.C:
		}

		rs.cycle()
	}
}

func (rs *refreshScheduler) nextInterval() time.Duration {
	rs.manager.lock.Lock()
	defer rs.manager.lock.Unlock()

	return NextCheckInterval(rs.manager.loadRecordLocked(rs.session.account))
}

// cycle runs one refresh pass for this scheduler's account under the
// manager mutex, so a concurrent Get never observes a half-updated record or
// handle.
func (rs *refreshScheduler) cycle() {
	rs.manager.lock.Lock()
	defer rs.manager.lock.Unlock()

	if rs.manager.shutdown {
		return
	}
	rs.manager.refreshSessionLocked(context.Background(), rs.session)
}
