package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"truce.ai/internal/protocol"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/arena"
)

const (
	writeWait     = 5 * time.Second
	helloWait     = 5 * time.Second
	readIdle      = 60 * time.Second
	sessionQueue  = 64
	leaveWait     = 5 * time.Second
	maxMessageLen = 64 * 1024
)

// Server bridges one websocket per actor to the arena loop. Each connection
// starts with HELLO; afterwards MOVE/HIT/DIED/CMD/USE are forwarded and LEAVE
// (or the socket closing) disconnects the actor.
type Server struct {
	arena *arena.Arena
	log   *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(a *arena.Arena, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		arena: a,
		log:   logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageLen,
			WriteBufferSize: maxMessageLen,
			CheckOrigin:     func(r *http.Request) bool { return true }, // game hosts are not browsers
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessageLen)

		id, out := s.handshake(conn)
		if id == uuid.Nil {
			return
		}
		log := s.log.With(zap.Stringer("actor", id))

		// Writer goroutine. It exits once out is closed and drained, on quit,
		// or on a write error.
		quit := make(chan struct{})
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-quit:
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		graceful := s.readLoop(conn, id, log)

		// Once Leave has been handled the arena no longer holds out, so the
		// writer can drain it (a PUNISH may be queued).
		if s.leave(id, log) {
			close(out)
		} else {
			close(quit)
		}
		<-writerDone
		if graceful {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		}
	}
}

// readLoop forwards session messages until LEAVE (graceful) or a read error.
func (s *Server) readLoop(conn *websocket.Conn, id actors.ID, log *zap.Logger) (graceful bool) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdle))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("session read ended", zap.Error(err))
			}
			return false
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			log.Debug("dropping malformed message", zap.Error(err))
			continue
		}
		if base.Type == protocol.TypeLeave {
			return true
		}
		v, ok := decode(base.Type, msg)
		if !ok {
			log.Debug("dropping message", zap.String("type", base.Type))
			continue
		}
		select {
		case s.arena.Inbox() <- arena.Envelope{ActorID: id, Msg: v}:
		case <-s.arena.Done():
			return false
		}
	}
}

func decode(typ string, msg []byte) (any, bool) {
	var v any
	switch typ {
	case protocol.TypeMove:
		v = &protocol.MoveMsg{}
	case protocol.TypeHit:
		v = &protocol.HitMsg{}
	case protocol.TypeDied:
		v = &protocol.DiedMsg{}
	case protocol.TypeCmd:
		v = &protocol.CmdMsg{}
	case protocol.TypeUse:
		v = &protocol.UseMsg{}
	default:
		return nil, false
	}
	if err := json.Unmarshal(msg, v); err != nil {
		return nil, false
	}
	return v, true
}

// leave reports whether the arena is done with the session's out channel.
func (s *Server) leave(id actors.ID, log *zap.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), leaveWait)
	defer cancel()
	resp := make(chan arena.LeaveResponse, 1)
	select {
	case s.arena.Inbox() <- arena.Envelope{ActorID: id, Msg: arena.LeaveRequest{Resp: resp}}:
	case <-s.arena.Done():
		return true
	case <-ctx.Done():
		log.Warn("leave not accepted in time")
		return false
	}
	select {
	case r := <-resp:
		if r.Punished {
			log.Info("session closed while in combat")
		}
		return true
	case <-s.arena.Done():
		return true
	case <-ctx.Done():
		log.Warn("leave not acknowledged in time")
		return false
	}
}

func (s *Server) handshake(conn *websocket.Conn) (actors.ID, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(helloWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return uuid.Nil, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return uuid.Nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(hello.ActorID))
	if err != nil || id == uuid.Nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad actor_id")
		return uuid.Nil, nil
	}
	name := strings.TrimSpace(hello.Name)
	if name == "" {
		name = id.String()[:8]
	}

	out := make(chan []byte, sessionQueue)
	respCh := make(chan arena.JoinResponse, 1)
	select {
	case s.arena.Join() <- arena.JoinRequest{
		ActorID: id,
		Name:    name,
		Loc:     actors.Location{World: hello.World, Pos: actors.Vec3{X: hello.Pos[0], Y: hello.Pos[1], Z: hello.Pos[2]}},
		Out:     out,
		Resp:    respCh,
	}:
	case <-s.arena.Done():
		closeWith(conn, websocket.CloseGoingAway, "shutting down")
		return uuid.Nil, nil
	}
	var resp arena.JoinResponse
	select {
	case resp = <-respCh:
	case <-s.arena.Done():
		closeWith(conn, websocket.CloseGoingAway, "shutting down")
		return uuid.Nil, nil
	}
	if resp.Code != "" {
		_ = writeJSON(conn, protocol.ResultMsg{
			Type:            protocol.TypeResult,
			ProtocolVersion: protocol.Version,
			Code:            resp.Code,
			Message:         resp.Message,
		})
		closeWith(conn, websocket.ClosePolicyViolation, resp.Message)
		return uuid.Nil, nil
	}

	// Anything the loop queues on out is written by the writer goroutine,
	// which only starts after WELCOME.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.leave(id, s.log)
		return uuid.Nil, nil
	}
	s.log.Info("session opened", zap.Stringer("actor", id), zap.String("name", name))
	return id, out
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
