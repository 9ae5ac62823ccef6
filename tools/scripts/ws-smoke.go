// Package main provides a CI-friendly WebSocket smoke test for uniFree messaging.
//
// It validates:
//   - token handshake + subprotocol selection
//   - initial_history on connect
//   - send_message -> message_ack for the sender
//   - live new_message for an online recipient
//   - mark_read, observed through a fresh history snapshot
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "unifree/shared/contracts/messaging/v1"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
)

const maxReadBytes = 1 << 20 // 1MiB

type participant struct {
	id    string
	name  string
	token string
}

type smokeClient struct {
	who  participant
	conn *websocket.Conn

	history []v1.Message

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		aID     = flag.String("a-id", "u1", "Sender user id")
		aName   = flag.String("a-name", "alice", "Sender display name")
		aToken  = flag.String("a-token", "", "Sender access token (minted from -secret when empty)")
		bID     = flag.String("b-id", "u2", "Recipient user id")
		bName   = flag.String("b-name", "bob", "Recipient display name")
		bToken  = flag.String("b-token", "", "Recipient access token (minted from -secret when empty)")
		secret  = flag.String("secret", os.Getenv("UNIFREE_SECRET_KEY"), "HS256 secret used to mint tokens")
		text    = flag.String("text", "is the bike still for sale? 🚲", "Message content to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	a := participant{id: *aID, name: *aName, token: mustToken(*aToken, *secret, *aID)}
	b := participant{id: *bID, name: *bName, token: mustToken(*bToken, *secret, *bID)}

	root := context.Background()

	ca := mustConnect(root, a, *wsURL, *origin, *timeout)
	defer closeWS(ca.conn)

	cb := mustConnect(root, b, *wsURL, *origin, *timeout)

	if *verbose {
		fmt.Printf("connected: A=%s (%d in history) B=%s (%d in history) origin=%q\n",
			a.id, len(ca.history), b.id, len(cb.history), *origin)
	}

	clientMsgID := fmt.Sprintf("cmsg-%d", time.Now().UnixNano())
	sent := mustSendAndAssertAck(root, ca, b.id, clientMsgID, *text, *timeout)

	mustAssertNew(root, cb, sent, *timeout)

	cb.send(root, v1.TypeMarkRead, v1.MarkReadPayload{SenderID: a.id}, *timeout)
	// mark_read has no reply; give the server a moment before reconnecting.
	quiet(root, cb, 750*time.Millisecond)
	closeWS(cb.conn)

	cb = mustConnect(root, b, *wsURL, *origin, *timeout)
	defer closeWS(cb.conn)

	got, ok := findMessage(cb.history, sent.ID)
	if !ok {
		fatalf("history missing sent message %s (%s)", sent.ID, b.id)
	}
	if !got.ReadByRecipient {
		fatalf("history message %s not marked read (%s)", sent.ID, b.id)
	}

	fmt.Printf("OK: A=%s B=%s message_id=%s history=%d\n", a.id, b.id, sent.ID, len(cb.history))
}

func mustToken(token, secret, userID string) string {
	if strings.TrimSpace(token) != "" {
		return token
	}
	if len(secret) < 32 {
		fatalf("no token for %s and -secret is shorter than 32 bytes", userID)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fatalf("sign token for %s: %v", userID, err)
	}
	return signed
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, who participant, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse url: %v", err)
	}
	q := u.Query()
	q.Set("user_id", who.id)
	q.Set("display_name", who.name)
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+who.token)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			fatalf("connect %s: status=%d: %v", who.id, resp.StatusCode, err)
		}
		fatalf("connect %s: %v", who.id, err)
	}

	assertSubprotocol(resp, v1.Subprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		who:   who,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	p := await[v1.InitialHistoryPayload](parent, c, v1.TypeInitialHistory, stepTimeout)
	for _, m := range p.Messages {
		if m.SenderID != who.id && m.RecipientID != who.id {
			fatalf("initial_history leaked foreign message %s (%s)", m.ID, who.id)
		}
	}
	c.history = p.Messages

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

// startReadLoop pumps validated envelopes into inbox until the connection fails.
func (c *smokeClient) startReadLoop() {
	fail := func(err error) {
		select {
		case c.errCh <- err:
		default:
		}
	}

	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				fail(err)
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				fail(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

// await reads envelopes until one of type want arrives and decodes its payload into T.
// Any other envelope, including an error, fails the run.
func await[T any](parent context.Context, c *smokeClient, want string, stepTimeout time.Duration) T {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var out T
	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", want, c.who.id, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", want, c.who.id, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", want, c.who.id)
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.who.id, ep.Code, ep.Message)
			}
			if env.Type != want {
				fatalf("unexpected envelope type (%s): got=%q want=%q", c.who.id, env.Type, want)
			}
			if err := json.Unmarshal(env.Payload, &out); err != nil {
				fatalf("unmarshal %s payload (%s): %v", want, c.who.id, err)
			}
			return out
		}
	}
}

// quiet fails the run if anything arrives on c within wait.
func quiet(parent context.Context, c *smokeClient, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	select {
	case <-ctx.Done():
	case err := <-c.errCh:
		fatalf("connection closed unexpectedly (%s): %v", c.who.id, err)
	case env, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed unexpectedly (%s)", c.who.id)
		}
		fatalf("unexpected %q received (%s): %s", env.Type, c.who.id, env.Payload)
	}
}

func (c *smokeClient) send(parent context.Context, typ string, payload any, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("%s-%s-%d", c.who.id, typ, time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: mustJSON(payload),
	}

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write %s (%s): %v", typ, c.who.id, err)
	}
}

func mustSendAndAssertAck(parent context.Context, c *smokeClient, recipientID, clientMsgID, text string, stepTimeout time.Duration) v1.Message {
	c.send(parent, v1.TypeSendMessage, v1.SendMessagePayload{
		RecipientID: recipientID,
		Content:     text,
		ClientMsgID: clientMsgID,
	}, stepTimeout)

	ack := await[v1.MessageAckPayload](parent, c, v1.TypeMessageAck, stepTimeout)
	m := ack.Message
	switch {
	case ack.ClientMsgID != clientMsgID:
		fatalf("ack client_msg_id mismatch (%s): got=%q want=%q", c.who.id, ack.ClientMsgID, clientMsgID)
	case strings.TrimSpace(m.ID) == "":
		fatalf("ack missing message id (%s)", c.who.id)
	case m.SenderID != c.who.id || m.RecipientID != recipientID:
		fatalf("ack participants mismatch (%s): %s -> %s", c.who.id, m.SenderID, m.RecipientID)
	case m.Content != text:
		fatalf("ack content mismatch (%s): got=%q want=%q", c.who.id, m.Content, text)
	case m.ReadByRecipient || !m.ReadBySender:
		fatalf("ack read flags wrong (%s): recipient=%v sender=%v", c.who.id, m.ReadByRecipient, m.ReadBySender)
	case m.SentAt.IsZero():
		fatalf("ack sent_at missing (%s)", c.who.id)
	}
	return m
}

func mustAssertNew(parent context.Context, c *smokeClient, want v1.Message, stepTimeout time.Duration) {
	got := await[v1.NewMessagePayload](parent, c, v1.TypeNewMessage, stepTimeout).Message
	if got.ID != want.ID || got.SenderID != want.SenderID || got.Content != want.Content {
		fatalf("new_message mismatch (%s): got=%+v want=%+v", c.who.id, got, want)
	}
}

func findMessage(msgs []v1.Message, id string) (v1.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return v1.Message{}, false
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
