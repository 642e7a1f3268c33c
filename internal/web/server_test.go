package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"ledstripd/internal/leds"
)

type fakeControls struct {
	state     leds.State
	effects   []string
	submitted [][]byte
	full      bool
}

func (f *fakeControls) Snapshot() leds.State  { return f.state }
func (f *fakeControls) EffectNames() []string { return f.effects }
func (f *fakeControls) Uptime() time.Duration { return 90 * time.Second }

func (f *fakeControls) Submit(p []byte) error {
	if f.full {
		return errors.New("command queue full")
	}
	f.submitted = append(f.submitted, p)
	return nil
}

func newTestControls(t *testing.T) *fakeControls {
	t.Helper()
	order, err := leds.ParseChannelOrder("GRB")
	if err != nil {
		t.Fatal(err)
	}
	return &fakeControls{
		state: leds.State{
			Power:      true,
			Brightness: 128,
			Color:      leds.Color{R: 255, G: 10, B: 20},
			Effect:     leds.EffectRainbow,
			LEDCount:   30,
			Order:      order,
		},
		effects: []string{"none", "rainbow"},
	}
}

func newTestServer(t *testing.T, ctrl Controls, opts ...ServerOption) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(ctrl, logger, opts...)
	t.Cleanup(s.Stop)
	return s
}

func TestHandleState(t *testing.T) {
	s := newTestServer(t, newTestControls(t))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Power || resp.Brightness != 128 || resp.Effect != "rainbow" {
		t.Errorf("state = %+v", resp)
	}
	if resp.LEDCount != 30 || resp.LEDMode != "GRB" {
		t.Errorf("geometry = %d %q", resp.LEDCount, resp.LEDMode)
	}
	if resp.Uptime != 90 {
		t.Errorf("uptime = %v", resp.Uptime)
	}
	if resp.Color.W != nil {
		t.Error("rgb strip must not report a white channel")
	}
}

func TestHandleCommand(t *testing.T) {
	ctrl := newTestControls(t)
	s := newTestServer(t, ctrl)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"action": "brightness", "value": 40}`)
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(ctrl.submitted) != 1 {
		t.Fatalf("submitted = %d commands", len(ctrl.submitted))
	}
}

func TestHandleCommandRejectsNonJSON(t *testing.T) {
	ctrl := newTestControls(t)
	s := newTestServer(t, ctrl)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader("not json")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(ctrl.submitted) != 0 {
		t.Error("invalid payload must not be submitted")
	}
}

func TestHandleCommandQueueFull(t *testing.T) {
	ctrl := newTestControls(t)
	ctrl.full = true
	s := newTestServer(t, ctrl)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{}`)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleEffects(t *testing.T) {
	s := newTestServer(t, newTestControls(t))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/effects", nil))

	var resp map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp["effects"]) != 2 || resp["effects"][1] != "rainbow" {
		t.Errorf("effects = %v", resp["effects"])
	}
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t, newTestControls(t), WithAPIKey("sekrit"))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("X-API-Key", "sekrit")
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", rec.Code)
	}

	// Metrics path is not API-key protected.
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics: status = %d, want 200", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, newTestControls(t), WithAllowedOrigins([]string{"http://app.local"}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/command", nil)
	req.Header.Set("Origin", "http://app.local")
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("allowed origin: status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/api/command", nil)
	req.Header.Set("Origin", "http://evil.example")
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("forbidden origin: status = %d, want 403", rec.Code)
	}
}

func TestWSFramePreview(t *testing.T) {
	s := newTestServer(t, newTestControls(t))
	ts := httptest.NewServer(s)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the hub a moment to register the client.
	deadline := time.Now().Add(time.Second)
	frame := []byte{1, 2, 3, 4, 5, 6}
	for time.Now().Before(deadline) {
		s.BroadcastFrame(frame)
		time.Sleep(10 * time.Millisecond)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var msg wsFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "frame" {
		t.Errorf("type = %q", msg.Type)
	}
	if string(msg.Frame) != string(frame) {
		t.Errorf("frame = %v, want %v", msg.Frame, frame)
	}
}
