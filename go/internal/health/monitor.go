// Package health classifies participant liveness from heartbeats and
// drives timeout-based disconnects. Instead of rescanning every
// session on a fixed interval, it keeps one deadline per participant
// in a min-heap and sleeps until the earliest one.
package health

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/election"
	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/models"
	"github.com/Polimar/BrainBrawler/go/internal/registry"
)

// DefaultDisconnectThreshold is how long a participant may go without a
// heartbeat before being marked disconnected.
const DefaultDisconnectThreshold = 20 * time.Second

type participantKey struct {
	SessionID     uuid.UUID
	ParticipantID string
}

type deadlineEntry struct {
	key      participantKey
	deadline time.Time
	seq      uint64
}

type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)         { *h = append(*h, x.(deadlineEntry)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Monitor watches per-participant heartbeat deadlines. Disconnect is a
// soft state allowing rejoin; the monitor never removes roster entries.
type Monitor struct {
	registry  *registry.Registry
	elections *election.Engine
	dispatch  election.Dispatcher
	clock     clockwork.Clock
	threshold time.Duration
	wake      chan struct{}

	mu        sync.Mutex
	deadlines deadlineHeap
	latest    map[participantKey]uint64
	nextSeq   uint64
}

// NewMonitor creates a monitor; call Run to start the scheduler.
func NewMonitor(reg *registry.Registry, elections *election.Engine, dispatch election.Dispatcher, clock clockwork.Clock, threshold time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultDisconnectThreshold
	}
	return &Monitor{
		registry:  reg,
		elections: elections,
		dispatch:  dispatch,
		clock:     clock,
		threshold: threshold,
		wake:      make(chan struct{}, 1),
		latest:    make(map[participantKey]uint64),
	}
}

// Track arms the disconnect deadline for a participant. Called on join
// and after every heartbeat; a stale earlier deadline is superseded.
func (m *Monitor) Track(sessionID uuid.UUID, participantID string) {
	key := participantKey{SessionID: sessionID, ParticipantID: participantID}
	m.mu.Lock()
	m.nextSeq++
	seq := m.nextSeq
	m.latest[key] = seq
	heap.Push(&m.deadlines, deadlineEntry{
		key:      key,
		deadline: m.clock.Now().Add(m.threshold),
		seq:      seq,
	})
	m.mu.Unlock()
	m.wakeScheduler()
}

// Forget drops a participant's deadline, e.g. on explicit leave.
func (m *Monitor) Forget(sessionID uuid.UUID, participantID string) {
	key := participantKey{SessionID: sessionID, ParticipantID: participantID}
	m.mu.Lock()
	delete(m.latest, key)
	m.mu.Unlock()
	m.wakeScheduler()
}

// Heartbeat applies one heartbeat: the registry updates liveness and
// the quality bucket from the reported latency, and the deadline is
// recomputed. A restored participant is announced to the room.
func (m *Monitor) Heartbeat(sessionID uuid.UUID, participantID string, latencyMs int) error {
	snap, reconnected, err := m.registry.RecordHeartbeat(sessionID, participantID, latencyMs)
	if err != nil {
		return err
	}
	m.Track(sessionID, participantID)

	if reconnected {
		p := snap.Participant(participantID)
		log.Info().
			Str("session_id", sessionID.String()).
			Str("participant_id", participantID).
			Int("latency_ms", latencyMs).
			Msg("participant reconnected")
		now := m.clock.Now()
		m.dispatch.Dispatch(sessionID, []events.Event{
			events.MustNew(sessionID, events.EventTypeParticipantReconnected, now, events.ParticipantPresencePayload{
				ParticipantID: participantID,
				DisplayName:   p.DisplayName,
			}),
			events.MustNew(sessionID, events.EventTypeRosterChanged, now, events.RosterChangedPayload{
				Roster: events.RosterView(snap.Roster),
			}),
		})
	}
	return nil
}

func (m *Monitor) wakeScheduler() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run loops until ctx is done, sleeping until the earliest deadline and
// firing timeouts.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().Dur("threshold", m.threshold).Msg("health monitor started")

	timer := m.clock.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.Chan()
	}

	for {
		entry, ok := m.peek()
		if !ok {
			select {
			case <-ctx.Done():
				log.Info().Msg("health monitor shutting down")
				return nil
			case <-m.wake:
				continue
			}
		}

		wait := entry.deadline.Sub(m.clock.Now())
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Info().Msg("health monitor shutting down")
				return nil
			case <-m.wake:
				// The timer may have fired concurrently with the
				// wake; drain it so the next Reset starts clean.
				if !timer.Stop() {
					select {
					case <-timer.Chan():
					default:
					}
				}
				continue
			case <-timer.Chan():
			}
		}

		if m.take(entry) {
			m.expire(entry.key)
		}
	}
}

// peek returns the current earliest live deadline, discarding stale
// heap entries along the way.
func (m *Monitor) peek() (deadlineEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.deadlines.Len() > 0 {
		top := m.deadlines[0]
		if m.latest[top.key] != top.seq {
			heap.Pop(&m.deadlines)
			continue
		}
		return top, true
	}
	return deadlineEntry{}, false
}

// take claims entry if it is still the live deadline for its key. The
// heap copy becomes stale and is discarded by a later peek.
func (m *Monitor) take(entry deadlineEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest[entry.key] != entry.seq {
		return false
	}
	delete(m.latest, entry.key)
	return true
}

// expire marks the participant disconnected and, if it was the host,
// triggers an election.
func (m *Monitor) expire(key participantKey) {
	wasHost := false
	var name string
	timedOut := false
	rearm := false

	snap, err := m.registry.Update(key.SessionID, func(s *models.Session) error {
		p := s.Participant(key.ParticipantID)
		if p == nil || !p.IsConnected {
			return nil
		}
		// A heartbeat may have raced the timer; only expire if the
		// threshold has truly elapsed. The key was already claimed, so
		// the deadline must be re-armed for the next silence.
		if m.clock.Now().Sub(p.LastHeartbeatAt) < m.threshold {
			rearm = true
			return nil
		}
		p.IsConnected = false
		p.Quality = models.QualityDisconnected
		wasHost = p.IsHost
		name = p.DisplayName
		timedOut = true
		return nil
	})
	if err != nil || !timedOut {
		if rearm {
			m.Track(key.SessionID, key.ParticipantID)
		}
		return
	}

	log.Info().
		Str("session_id", key.SessionID.String()).
		Str("participant_id", key.ParticipantID).
		Bool("was_host", wasHost).
		Msg("participant heartbeat timed out")

	now := m.clock.Now()
	m.dispatch.Dispatch(key.SessionID, []events.Event{
		events.MustNew(key.SessionID, events.EventTypeParticipantDisconnected, now, events.ParticipantPresencePayload{
			ParticipantID: key.ParticipantID,
			DisplayName:   name,
			WasHost:       wasHost,
		}),
		events.MustNew(key.SessionID, events.EventTypeRosterChanged, now, events.RosterChangedPayload{
			Roster: events.RosterView(snap.Roster),
		}),
	})

	if wasHost {
		if err := m.elections.Trigger(key.SessionID, models.ElectionReasonHostTimeout); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", key.SessionID.String()).
				Msg("host timeout election not started")
		}
	}
}
