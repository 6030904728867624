package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/election"
	"github.com/Polimar/BrainBrawler/go/internal/engine"
	"github.com/Polimar/BrainBrawler/go/internal/events"
	"github.com/Polimar/BrainBrawler/go/internal/game"
	"github.com/Polimar/BrainBrawler/go/internal/health"
	"github.com/Polimar/BrainBrawler/go/internal/models"
	"github.com/Polimar/BrainBrawler/go/internal/registry"
	"github.com/Polimar/BrainBrawler/go/internal/relay"
)

// Router decodes client messages and drives the coordinator. It is the
// only component that talks to every subsystem.
type Router struct {
	registry  *registry.Registry
	engine    *engine.Engine
	elections *election.Engine
	monitor   *health.Monitor
	relay     *relay.Relay
	cm        *ConnectionManager
	dispatch  engine.Dispatcher
	clock     clockwork.Clock
}

// NewRouter wires the message router. Call cm.SetHandler with the
// result before serving traffic.
func NewRouter(
	reg *registry.Registry,
	eng *engine.Engine,
	elections *election.Engine,
	monitor *health.Monitor,
	rel *relay.Relay,
	cm *ConnectionManager,
	dispatch engine.Dispatcher,
	clock clockwork.Clock,
) *Router {
	return &Router{
		registry:  reg,
		engine:    eng,
		elections: elections,
		monitor:   monitor,
		relay:     rel,
		cm:        cm,
		dispatch:  dispatch,
		clock:     clock,
	}
}

// HandleMessage routes one inbound client message.
func (rt *Router) HandleMessage(conn *Connection, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		rt.sendError(conn, "", "MALFORMED_MESSAGE", "message is not valid JSON")
		return
	}

	var err error
	switch msg.Type {
	case MsgJoinSession:
		err = rt.handleJoin(conn, msg.Data)
	case MsgLeaveSession:
		rt.handleLeave(conn)
	case MsgSetReady:
		err = rt.handleSetReady(conn, msg.Data)
	case MsgStartMatch:
		err = rt.engine.StartMatch(conn.Session(), conn.ParticipantID)
	case MsgAdvanceRound:
		err = rt.handleAdvanceRound(conn, msg.Data)
	case MsgPauseMatch:
		err = rt.engine.Pause(conn.Session(), conn.ParticipantID)
	case MsgResumeMatch:
		err = rt.engine.Resume(conn.Session(), conn.ParticipantID)
	case MsgSubmitAnswer:
		err = rt.handleSubmitAnswer(conn, msg.Data)
	case MsgHeartbeat:
		err = rt.handleHeartbeat(conn, msg.Data)
	case MsgRequestElection:
		err = rt.handleRequestElection(conn)
	case MsgCastElectionVote:
		err = rt.handleCastVote(conn, msg.Data)
	case MsgRelaySignal:
		err = rt.handleRelaySignal(conn, msg.Data)
	case MsgSyncState:
		err = rt.handleSyncState(conn, msg.Data)
	default:
		rt.sendError(conn, msg.Type, "UNKNOWN_MESSAGE_TYPE", "unrecognized message type")
		return
	}

	if err != nil {
		rt.sendError(conn, msg.Type, game.ReasonCode(err), err.Error())
	}
}

// HandleDisconnect runs when a websocket drops. The participant stays
// in the roster; the health monitor decides when they are truly gone,
// but the socket loss is reflected immediately.
func (rt *Router) HandleDisconnect(conn *Connection) {
	sessionID := conn.Session()
	if sessionID == uuid.Nil {
		return
	}

	wasHost := false
	snap, err := rt.registry.Update(sessionID, func(s *models.Session) error {
		p := s.Participant(conn.ParticipantID)
		if p == nil {
			return game.ErrNotAParticipant
		}
		wasHost = p.IsHost
		p.IsConnected = false
		p.Quality = models.QualityDisconnected
		return nil
	})
	if err != nil {
		return
	}

	now := rt.clock.Now()
	rt.dispatch.Dispatch(sessionID, []events.Event{
		events.MustNew(sessionID, events.EventTypeParticipantDisconnected, now, events.ParticipantPresencePayload{
			ParticipantID: conn.ParticipantID,
			DisplayName:   conn.DisplayName,
			WasHost:       wasHost,
		}),
		events.MustNew(sessionID, events.EventTypeRosterChanged, now, events.RosterChangedPayload{
			Roster: events.RosterView(snap.Roster),
		}),
	})

	if wasHost && !snap.State.Terminal() {
		if err := rt.elections.Trigger(sessionID, models.ElectionReasonHostDisconnected); err != nil {
			log.Warn().Err(err).
				Str("session_id", sessionID.String()).
				Msg("host election not started after disconnect")
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", conn.ParticipantID).
		Str("session_id", sessionID.String()).
		Msg("participant connection lost")
}

func (rt *Router) handleJoin(conn *Connection, raw json.RawMessage) error {
	var payload JoinSessionPayload
	if raw != nil {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
	}

	participant := &models.Participant{
		ID:          conn.ParticipantID,
		DisplayName: conn.DisplayName,
	}

	var snap *models.Session
	if payload.Create {
		settings := models.DefaultGameSettings()
		if payload.Settings != nil {
			settings = *payload.Settings
		}
		if err := settings.Validate(); err != nil {
			return err
		}
		created, err := rt.registry.CreateSession(game.GenerateSessionCode(), participant, settings)
		if err != nil {
			return err
		}
		snap = created
	} else {
		code := strings.ToUpper(payload.SessionCode)
		var existing *models.Session
		var err error
		switch {
		case game.IsValidSessionCode(code):
			existing, err = rt.registry.GetSessionByCode(code)
		case game.IsValidInviteCode(code):
			existing, err = rt.registry.GetSessionByInviteCode(code)
		default:
			return game.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		joined, rejoined, err := rt.registry.AddParticipant(existing.ID, participant)
		if err != nil {
			return err
		}
		snap = joined
		if rejoined {
			rt.dispatch.Dispatch(snap.ID, []events.Event{
				events.MustNew(snap.ID, events.EventTypeParticipantReconnected, rt.clock.Now(), events.ParticipantPresencePayload{
					ParticipantID: conn.ParticipantID,
					DisplayName:   conn.DisplayName,
				}),
			})
		}
	}

	rt.cm.Bind(conn, snap.ID)
	rt.monitor.Track(snap.ID, conn.ParticipantID)

	conn.SendJSON(JoinedReply{
		Type:        ReplyJoined,
		SessionID:   snap.ID.String(),
		SessionCode: snap.Code,
		InviteCode:  snap.InviteCode,
		State:       snap.State,
		HostID:      snap.HostID,
		Settings:    snap.Settings,
		Roster:      events.RosterView(snap.Roster),
	})

	rt.dispatch.Dispatch(snap.ID, []events.Event{
		events.MustNew(snap.ID, events.EventTypeRosterChanged, rt.clock.Now(), events.RosterChangedPayload{
			Roster: events.RosterView(snap.Roster),
		}),
	})
	return nil
}

func (rt *Router) handleLeave(conn *Connection) {
	sessionID := conn.Session()
	if sessionID == uuid.Nil {
		return
	}

	rt.monitor.Forget(sessionID, conn.ParticipantID)
	snap, removed, err := rt.registry.RemoveParticipant(sessionID, conn.ParticipantID)
	rt.cm.Unbind(conn)
	if err != nil || removed == nil {
		return
	}

	if len(snap.Roster) == 0 {
		return
	}

	rt.dispatch.Dispatch(sessionID, []events.Event{
		events.MustNew(sessionID, events.EventTypeRosterChanged, rt.clock.Now(), events.RosterChangedPayload{
			Roster: events.RosterView(snap.Roster),
		}),
	})

	if removed.IsHost && !snap.State.Terminal() {
		if err := rt.elections.Trigger(sessionID, models.ElectionReasonHostDisconnected); err != nil {
			log.Warn().Err(err).
				Str("session_id", sessionID.String()).
				Msg("host election not started after leave")
		}
	}
}

func (rt *Router) handleSetReady(conn *Connection, raw json.RawMessage) error {
	var payload SetReadyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	snap, err := rt.registry.SetReady(conn.Session(), conn.ParticipantID, payload.Ready)
	if err != nil {
		return err
	}
	rt.dispatch.Dispatch(conn.Session(), []events.Event{
		events.MustNew(conn.Session(), events.EventTypeRosterChanged, rt.clock.Now(), events.RosterChangedPayload{
			Roster: events.RosterView(snap.Roster),
		}),
	})
	return nil
}

func (rt *Router) handleAdvanceRound(conn *Connection, raw json.RawMessage) error {
	var payload AdvanceRoundPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return rt.engine.AdvanceRound(conn.Session(), conn.ParticipantID, payload.Question)
}

func (rt *Router) handleSubmitAnswer(conn *Connection, raw json.RawMessage) error {
	var payload SubmitAnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return rt.engine.SubmitAnswer(conn.Session(), conn.ParticipantID, payload.Answer, payload.ElapsedMs)
}

func (rt *Router) handleHeartbeat(conn *Connection, raw json.RawMessage) error {
	var payload HeartbeatPayload
	if raw != nil {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return err
		}
	}
	conn.LastPing = time.Now()
	return rt.monitor.Heartbeat(conn.Session(), conn.ParticipantID, payload.LatencyMs)
}

func (rt *Router) handleRequestElection(conn *Connection) error {
	snap, err := rt.registry.GetSession(conn.Session())
	if err != nil {
		return err
	}
	// Any participant may request an election; the current host keeps
	// an incumbency edge in the scoring.
	if snap.Participant(conn.ParticipantID) == nil {
		return game.ErrNotAParticipant
	}
	return rt.elections.Trigger(conn.Session(), models.ElectionReasonManual)
}

func (rt *Router) handleCastVote(conn *Connection, raw json.RawMessage) error {
	var payload CastElectionVotePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return rt.elections.CastVote(conn.Session(), conn.ParticipantID, payload.CandidateID)
}

func (rt *Router) handleRelaySignal(conn *Connection, raw json.RawMessage) error {
	var payload RelaySignalPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	rt.relay.Forward(conn.Session(), conn.ParticipantID, payload.ToID, payload.Kind, payload.Payload)
	return nil
}

func (rt *Router) handleSyncState(conn *Connection, raw json.RawMessage) error {
	var payload SyncStatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return rt.engine.SyncState(conn.Session(), conn.ParticipantID, payload.State)
}

func (rt *Router) sendError(conn *Connection, requestType, code, message string) {
	conn.SendJSON(ErrorReply{
		Type:       ReplyError,
		ReasonCode: code,
		Message:    message,
		RequestID:  requestType,
	})
}
