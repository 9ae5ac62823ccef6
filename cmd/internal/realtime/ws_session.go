package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	v1 "unifree/shared/contracts/messaging/v1"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
)

var (
	errBadJSON = errors.New("invalid JSON")

	payloadValidator = validator.New(validator.WithRequiredStructEnabled())
)

// wsSession is one accepted connection: a read loop on the handler goroutine, plus a writer
// and a heartbeat goroutine. Inbound events are handled one at a time, in arrival order.
type wsSession struct {
	g      *WSGateway
	conn   *websocket.Conn
	client *Client
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// lastSeen is the unix-nano time of the last inbound frame or answered ping.
	lastSeen atomic.Int64

	endOnce sync.Once
}

func newWSSession(parent context.Context, g *WSGateway, conn *websocket.Conn, client *Client) *wsSession {
	ctx, cancel := context.WithCancel(parent)
	s := &wsSession{
		g:      g,
		conn:   conn,
		client: client,
		log:    g.log.With("session_id", client.SessionID, "user_id", client.UserID),
		ctx:    ctx,
		cancel: cancel,
	}
	s.touch()
	return s
}

func (s *wsSession) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *wsSession) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// run registers the session, serves it until the peer leaves or a loop fails, and cleans up.
//
// Presence is registered before the history query so no message persisted in between is
// lost; such a message can show up both in initial_history and as new_message. The snapshot
// is written before the writer starts, so it is always the first frame of a session.
func (s *wsSession) run() {
	s.g.presence.Register(s.client.UserID, s.client)

	if !s.pushHistory() {
		s.end(websocket.StatusAbnormalClosure, "write failed")
		s.log.Info("ws.close")
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.writeLoop() }()
	go func() { defer wg.Done(); s.heartbeatLoop() }()

	s.readLoop()

	s.end(websocket.StatusNormalClosure, "bye")

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(wsCloseGrace):
		s.log.Warn("ws.close.slow_goroutines")
	}
	s.log.Info("ws.close")
}

// end is idempotent. The presence entry is only removed while it still points at this
// session, so a superseded connection never evicts its replacement.
func (s *wsSession) end(code websocket.StatusCode, reason string) {
	s.endOnce.Do(func() {
		s.g.presence.Unregister(s.client.UserID, s.client)
		s.client.Close()
		_ = s.conn.Close(code, reason)
		s.cancel()
	})
}

func (s *wsSession) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.client.Done():
			return
		case env := <-s.client.Send:
			if err := writeEnvelope(s.ctx, s.conn, env, s.g.cfg.WriteTimeout); err != nil {
				s.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				s.end(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

// heartbeatLoop pings on an interval. An answered ping keeps the session alive however long
// the peer stays silent. After a missed ping the session ends once wsMaxPingFailures misses
// pile up in a row or nothing was heard from the peer for ReadIdleTimeout.
func (s *wsSession) heartbeatLoop() {
	t := time.NewTicker(s.g.cfg.HeartbeatEvery)
	defer t.Stop()

	missed := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.client.Done():
			return
		case <-t.C:
		}

		ctx, cancel := context.WithTimeout(s.ctx, s.g.cfg.HeartbeatTimeout)
		err := s.conn.Ping(ctx)
		cancel()
		if err == nil {
			missed = 0
			s.touch()
			continue
		}

		missed++
		idle := s.idleFor(time.Now())
		s.log.Info("ws.ping.fail", "missed", missed, "idle", idle, "err", err)
		if missed >= wsMaxPingFailures || idle >= s.g.cfg.ReadIdleTimeout {
			s.end(websocket.StatusGoingAway, "heartbeat failed")
			return
		}
	}
}

func (s *wsSession) readLoop() {
	limiter := newInboundLimiter(s.g.cfg.RateEvents, s.g.cfg.RateWindow)

	for {
		// No per-read deadline: dead peers are detected by heartbeatLoop.
		env, err := readEnvelope(s.ctx, s.conn)
		if err == nil || errors.Is(err, errBadJSON) {
			s.touch()
		}

		if err != nil {
			kind := classifyReadErr(err)
			if kind == readErrBadJSON {
				s.sendError("bad_json", "invalid JSON")
				continue
			}
			s.endAfterReadErr(kind, err)
			return
		}

		if !limiter.allow(time.Now()) {
			s.log.Warn("ws.rate_limited", "limit", limiter.limit(), "window", s.g.cfg.RateWindow)
			s.sendError("rate_limited", "too many events")
			s.end(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		if err := env.Validate(); err != nil {
			s.sendError("bad_envelope", err.Error())
			continue
		}

		switch env.Type {
		case v1.TypeSendMessage:
			s.onSendMessage(env)
		case v1.TypeMarkRead:
			s.onMarkRead(env)
		default:
			s.sendError("unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}
}

func (s *wsSession) endAfterReadErr(kind readErrKind, err error) {
	switch kind {
	case readErrClose:
		s.end(websocket.StatusNormalClosure, "peer closed")
	case readErrCtxDone:
		s.end(websocket.StatusNormalClosure, "context done")
	case readErrConnClosed:
		s.end(websocket.StatusAbnormalClosure, "conn closed")
	default:
		s.log.Info("ws.read.fail", "err", err)
		s.end(websocket.StatusAbnormalClosure, "read failed")
	}
}

// ---- handlers ----

// pushHistory writes the snapshot straight to the connection, ahead of anything queued.
// A store failure skips the push and keeps the session; it reports false only when the
// connection itself failed.
func (s *wsSession) pushHistory() bool {
	msgs, err := s.g.history.Load(s.ctx, s.client.UserID)
	if err != nil {
		s.g.metrics.historySnapshot("failed")
		s.log.Error("ws.history.fail", "err", err)
		return true
	}

	if err := writeEnvelope(s.ctx, s.conn, historyEnvelope(msgs, time.Now().UTC()), s.g.cfg.WriteTimeout); err != nil {
		s.g.metrics.historySnapshot("failed")
		s.log.Info("ws.history.write.fail", "messages", len(msgs), "err", err)
		return false
	}
	s.g.metrics.historySnapshot("sent")
	s.log.Debug("ws.history.sent", "messages", len(msgs))
	return true
}

func (s *wsSession) onSendMessage(env v1.Envelope) {
	var p v1.SendMessagePayload
	if err := decodePayload(env, &p); err != nil {
		s.sendError("bad_payload", err.Error())
		return
	}

	stored, err := s.g.dispatcher.Send(s.ctx, s.client, SendInput{
		RecipientID: p.RecipientID,
		Content:     p.Content,
		ClientMsgID: p.ClientMsgID,
	})
	switch {
	case errors.Is(err, ErrInvalidMessage):
		s.sendError("bad_payload", err.Error())
		return
	case err != nil:
		// Details stay in the server log.
		s.sendError("send_failed", "message was not stored")
		return
	}

	if !s.client.Deliver(ackEnvelope(p.ClientMsgID, stored, time.Now().UTC())) {
		s.log.Warn("ws.ack.backpressure", "message_id", stored.ID)
	}
}

// onMarkRead has no reply. Store failures are logged and counted by ReadReceipts.
func (s *wsSession) onMarkRead(env v1.Envelope) {
	var p v1.MarkReadPayload
	if err := decodePayload(env, &p); err != nil {
		s.sendError("bad_payload", err.Error())
		return
	}

	if _, err := s.g.receipts.MarkRead(s.ctx, s.client, p.SenderID); err != nil {
		if errors.Is(err, ErrInvalidMessage) {
			s.sendError("bad_payload", err.Error())
			return
		}
		s.log.Info("ws.mark_read.fail", "sender_id", p.SenderID, "err", err)
	}
}

func (s *wsSession) sendError(code, msg string) {
	_ = s.client.Deliver(errorEnvelope(code, msg, time.Now().UTC()))
}

func decodePayload(env v1.Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := payloadValidator.Struct(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case errors.Is(err, errBadJSON):
		return readErrBadJSON
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	default:
		return readErrUnknown
	}
}
