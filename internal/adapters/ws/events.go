package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/okatev/pulse/internal/domain"
)

// dispatch decodes the envelope and hands the event to the service. The
// sender identity always comes from the connection, never from the payload.
func (ctl *Controller) dispatch(ctx context.Context, conn *Conn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("conn", string(conn.ID())).Msg("bad json")
		return
	}

	switch env.Type {
	case "typing":
		ctl.handleTyping(ctx, conn, data)
	case "create-room", "offer":
		ctl.handleOffer(ctx, conn, data)
	case "answer":
		ctl.handleAnswer(ctx, conn, data)
	case "ice-candidate":
		ctl.handleCandidate(ctx, conn, data)
	case "call-accept":
		ctl.handleRoomAction(ctx, conn, data, ctl.Svc.Calls.Accept)
	case "call-reject":
		ctl.handleRoomAction(ctx, conn, data, ctl.Svc.Calls.Reject)
	case "end-call":
		ctl.handleRoomAction(ctx, conn, data, ctl.Svc.Calls.End)
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *Controller) handleTyping(ctx context.Context, conn *Conn, data []byte) {
	var p domain.Typing
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warn().Str("module", "ws").Msg("bad typing payload")
		return
	}
	p.From = conn.User()
	ctl.Svc.Typing(ctx, p)
}

func (ctl *Controller) handleOffer(ctx context.Context, conn *Conn, data []byte) {
	var p domain.CallOffer
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warn().Str("module", "ws").Msg("bad offer payload")
		return
	}
	p.From = conn.User()
	ctl.Svc.Calls.Offer(ctx, p)
}

func (ctl *Controller) handleAnswer(ctx context.Context, conn *Conn, data []byte) {
	var p domain.CallAnswer
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warn().Str("module", "ws").Msg("bad answer payload")
		return
	}
	p.From = conn.User()
	ctl.Svc.Calls.Answer(ctx, p)
}

func (ctl *Controller) handleCandidate(ctx context.Context, conn *Conn, data []byte) {
	var p domain.ICECandidate
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" || p.Room == "" {
		log.Warn().Str("module", "ws").Msg("bad candidate payload")
		return
	}
	p.From = conn.User()
	ctl.Svc.Calls.Candidate(ctx, p)
}

func (ctl *Controller) handleRoomAction(ctx context.Context, conn *Conn, data []byte, action func(context.Context, domain.RoomID, domain.UserID) bool) {
	var p struct {
		Room domain.RoomID `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		log.Warn().Str("module", "ws").Msg("bad room payload")
		return
	}
	action(ctx, p.Room, conn.User())
}
