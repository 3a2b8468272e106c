package signal_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/support-eye/relay/internal/adapters/signal"
	"github.com/support-eye/relay/internal/config"
	"github.com/support-eye/relay/internal/domain"
	"github.com/support-eye/relay/internal/errs"
	"github.com/support-eye/relay/internal/registry"
	"github.com/support-eye/relay/internal/relay"
	"github.com/support-eye/relay/internal/store"
)

type frame struct {
	Type       string          `json:"type"`
	Token      string          `json:"token"`
	Code       string          `json:"code"`
	Payload    json.RawMessage `json:"payload"`
	Annotation json.RawMessage `json:"annotation"`
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry, *relay.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(store.NewMemory())
	hub := relay.NewHub(reg, time.Minute)
	cfg := &config.Config{ReadLimit: 32768, SignalRate: 100}
	ctl := signal.NewController(hub, cfg)

	r := gin.New()
	r.GET("/api/ws", func(c *gin.Context) {
		ctl.HandleWS(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func join(t *testing.T, ws *websocket.Conn, token string, role domain.Role) {
	t.Helper()
	send(t, ws, map[string]string{"type": "join-session", "token": token, "role": string(role)})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func hasRole(roles []domain.Role, want domain.Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// TestSupportSessionFlow walks the whole happy path: technician joins,
// session stays WAITING, client joins, session becomes CONNECTED, an
// annotation reaches the client verbatim, and end-session completes the
// session for both parties.
func TestSupportSessionFlow(t *testing.T) {
	srv, reg, hub := newTestServer(t)
	sess, err := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	token := sess.Token

	techWS := dial(t, srv)
	join(t, techWS, token, domain.RoleTechnician)
	waitFor(t, func() bool {
		return hasRole(hub.MembersOf(token), domain.RoleTechnician)
	}, "technician never joined the room")

	got, err := reg.Validate(context.Background(), token)
	if err != nil || got.Status != domain.StatusWaiting {
		t.Fatalf("status after lone technician = %v (%v), want WAITING", got, err)
	}

	clientWS := dial(t, srv)
	join(t, clientWS, token, domain.RoleClient)
	waitFor(t, func() bool {
		s, err := reg.Validate(context.Background(), token)
		return err == nil && s.Status == domain.StatusConnected
	}, "session never became CONNECTED")

	send(t, techWS, map[string]any{
		"type":  "draw",
		"token": token,
		"annotation": map[string]any{
			"id":    "a1",
			"type":  "pointer",
			"x":     50,
			"y":     50,
			"color": "#3b82f6",
		},
	})

	f := read(t, clientWS)
	if f.Type != "draw" {
		t.Fatalf("client received %q, want draw", f.Type)
	}
	var ann domain.Annotation
	if err := json.Unmarshal(f.Annotation, &ann); err != nil {
		t.Fatalf("annotation: %v", err)
	}
	if ann.Type != domain.AnnotationPointer || ann.X != 50 || ann.Y != 50 || ann.Color != "#3b82f6" {
		t.Errorf("annotation = %+v, want the payload forwarded verbatim", ann)
	}

	send(t, techWS, map[string]string{"type": "end-session", "token": token})

	if f := read(t, techWS); f.Type != "session-ended" {
		t.Errorf("technician received %q, want session-ended", f.Type)
	}
	if f := read(t, clientWS); f.Type != "session-ended" {
		t.Errorf("client received %q, want session-ended", f.Type)
	}

	if _, err := reg.Validate(context.Background(), token); !errors.Is(err, errs.ErrSessionClosed) {
		t.Errorf("Validate after end = %v, want ErrSessionClosed", err)
	}

	// The relay closes both connections once the room is evicted.
	_ = clientWS.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := clientWS.ReadMessage(); err == nil {
		t.Error("client connection still open after session end")
	}
}

func TestJoinUnknownTokenClosesConnection(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ws := dial(t, srv)
	join(t, ws, "NO-SUCH-TOKEN", domain.RoleClient)

	f := read(t, ws)
	if f.Type != "error" || f.Code != "unknown_session" {
		t.Fatalf("frame = %+v, want error/unknown_session", f)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("connection left open after rejected join")
	}
}

func TestSignalRelayedToCounterpartOnly(t *testing.T) {
	srv, reg, hub := newTestServer(t)
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	token := sess.Token

	techWS := dial(t, srv)
	clientWS := dial(t, srv)
	join(t, techWS, token, domain.RoleTechnician)
	join(t, clientWS, token, domain.RoleClient)
	waitFor(t, func() bool { return len(hub.MembersOf(token)) == 2 }, "both parties never joined")

	send(t, clientWS, map[string]any{
		"type":    "signal",
		"token":   token,
		"payload": map[string]string{"type": "offer", "sdp": "v=0..."},
	})

	f := read(t, techWS)
	if f.Type != "signal" {
		t.Fatalf("technician received %q, want signal", f.Type)
	}
	var sdp struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(f.Payload, &sdp); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if sdp.Type != "offer" || sdp.SDP != "v=0..." {
		t.Errorf("payload = %+v, want the offer forwarded untouched", sdp)
	}
}

func TestMalformedPayloadDoesNotKillConnection(t *testing.T) {
	srv, reg, hub := newTestServer(t)
	sess, _ := reg.Create(context.Background(), "(514) 555-0199", "txt.bell.ca")
	token := sess.Token

	techWS := dial(t, srv)
	clientWS := dial(t, srv)
	join(t, techWS, token, domain.RoleTechnician)
	join(t, clientWS, token, domain.RoleClient)
	waitFor(t, func() bool { return len(hub.MembersOf(token)) == 2 }, "both parties never joined")

	// Not JSON at all, then a draw without an annotation: both dropped.
	if err := techWS.WriteMessage(websocket.TextMessage, []byte("not json{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, techWS, map[string]string{"type": "draw", "token": token})

	// The connection must still relay afterwards.
	send(t, techWS, map[string]any{
		"type":       "draw",
		"token":      token,
		"annotation": map[string]any{"id": "a2", "type": "rect", "x": 10, "y": 10, "color": "#fff"},
	})
	if f := read(t, clientWS); f.Type != "draw" {
		t.Errorf("client received %q, want the draw after the bad frames", f.Type)
	}
}

func TestPing(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ws := dial(t, srv)
	send(t, ws, map[string]string{"type": "ping"})
	if f := read(t, ws); f.Type != "pong" {
		t.Errorf("frame = %+v, want pong", f)
	}
}
