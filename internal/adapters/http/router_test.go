package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Call/internal/app/call"
	"github.com/dkeye/Call/internal/config"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	snap call.Snapshot
	errs map[string]error

	lastTarget domain.CallTarget
	lastKind   domain.CallKind
}

func (f *fakeEngine) StartCall(_ context.Context, target domain.CallTarget, kind domain.CallKind) error {
	f.lastTarget = target
	f.lastKind = kind
	return f.errs["start"]
}

func (f *fakeEngine) AcceptCall(context.Context) error  { return f.errs["accept"] }
func (f *fakeEngine) JoinCall(context.Context) error    { return f.errs["join"] }
func (f *fakeEngine) RejectCall(context.Context) error  { return f.errs["reject"] }
func (f *fakeEngine) EndCall(context.Context) error     { return f.errs["end"] }
func (f *fakeEngine) ToggleAudio(context.Context) error { return f.errs["audio"] }
func (f *fakeEngine) ToggleVideo(context.Context) error { return f.errs["video"] }
func (f *fakeEngine) Snapshot() call.Snapshot           { return f.snap }

func setup(engine *fakeEngine) *gin.Engine {
	cfg := &config.Config{Mode: "release", Port: 8090}
	return SetupRouter(context.Background(), cfg, engine)
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetCallSnapshot(t *testing.T) {
	engine := &fakeEngine{snap: call.Snapshot{
		Status:       domain.StatusOngoing,
		Mode:         domain.ModeDirect,
		Peer:         "u2",
		AudioEnabled: true,
	}}
	w := do(setup(engine), http.MethodGet, "/api/call", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var snap call.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if snap.Status != domain.StatusOngoing || snap.Peer != "u2" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStartCallBindsTarget(t *testing.T) {
	engine := &fakeEngine{}
	body := `{"mode":"channel","kind":"video","channel_id":"ch-1"}`
	w := do(setup(engine), http.MethodPost, "/api/call/start", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if engine.lastTarget.Mode != domain.ModeChannel || engine.lastTarget.Channel != "ch-1" {
		t.Errorf("target = %+v", engine.lastTarget)
	}
	if engine.lastKind != domain.KindVideo {
		t.Errorf("kind = %q", engine.lastKind)
	}
}

func TestStartCallBadBody(t *testing.T) {
	w := do(setup(&fakeEngine{}), http.MethodPost, "/api/call/start", `{"mode":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		op   string
		path string
		err  error
		want int
	}{
		{"busy", "start", "/api/call/start", call.ErrCallActive, http.StatusConflict},
		{"wrong status", "accept", "/api/call/accept", call.ErrWrongStatus, http.StatusConflict},
		{"wrong mode", "join", "/api/call/join", call.ErrWrongMode, http.StatusConflict},
		{"no call", "audio", "/api/call/audio", call.ErrNoCall, http.StatusNotFound},
		{"no video track", "video", "/api/call/video", core.ErrNoVideoTrack, http.StatusBadRequest},
		{"permission", "start", "/api/call/start", core.ErrPermissionDenied, http.StatusBadGateway},
		{"device", "start", "/api/call/start", core.ErrDeviceUnavailable, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{errs: map[string]error{tt.op: tt.err}}
			body := ""
			if tt.op == "start" {
				body = `{"mode":"direct","kind":"audio","peer_id":"u2"}`
			}
			w := do(setup(engine), http.MethodPost, tt.path, body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestEndCallOK(t *testing.T) {
	engine := &fakeEngine{snap: call.Snapshot{Status: domain.StatusIdle}}
	w := do(setup(engine), http.MethodPost, "/api/call/end", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
