package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"picam-motion/pkg/camera"
	"picam-motion/pkg/frame"
	"picam-motion/pkg/monitor"
	"picam-motion/pkg/storage"
)

type fakeMonitor struct {
	stats  monitor.Stats
	diff   *frame.Frame
	events chan monitor.Event
}

func (m *fakeMonitor) Stats() monitor.Stats { return m.stats }

func (m *fakeMonitor) LatestDiff() (*frame.Frame, error) { return m.diff, nil }

func (m *fakeMonitor) Subscribe(int) (<-chan monitor.Event, func()) {
	return m.events, func() {}
}

type fakeCamera struct {
	settings camera.Settings
	recorded string
}

func (c *fakeCamera) CapturePhoto(_ context.Context, width, height, quality int) ([]byte, error) {
	return []byte(fmt.Sprintf("%dx%d@%d", width, height, quality)), nil
}

func (c *fakeCamera) RecordVideo(_ context.Context, path string, _, _ int, _ time.Duration) (int, error) {
	if err := camera.CheckTarget(path); err != nil {
		return 0, err
	}
	c.recorded = path
	return 42, nil
}

func (c *fakeCamera) Settings() camera.Settings { return c.settings }

func (c *fakeCamera) UpdateSettings(s camera.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.settings = s
	return nil
}

type fakeIndicator struct{ on bool }

func (f *fakeIndicator) Set(on bool) { f.on = on }

type env struct {
	h      *Handlers
	router *gin.Engine
	mon    *fakeMonitor
	cam    *fakeCamera
	store  *storage.Storage
	ind    *fakeIndicator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	e := &env{
		mon:   &fakeMonitor{events: make(chan monitor.Event, 1)},
		cam:   &fakeCamera{settings: camera.DefaultSettings()},
		store: store,
		ind:   &fakeIndicator{},
	}
	e.h = &Handlers{
		Monitor:            e.mon,
		Camera:             e.cam,
		Store:              store,
		Indicator:          e.ind,
		IndicatorAvailable: func() bool { return false },
	}
	e.router = gin.New()
	e.h.Register(e.router.Group("/api"))

	return e
}

func (e *env) do(method, target string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("decode %s: %s", resp.Data, err)
	}
}

func TestMotionStatus(t *testing.T) {
	e := newEnv(t)
	e.mon.stats = monitor.Stats{Frames: 12, LastQuantity: 77, Tolerance: 15}

	rec := e.do("GET", "/api/motion/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected code %d", rec.Code)
	}
	var st monitor.Stats
	decodeData(t, rec, &st)
	if st.Frames != 12 || st.LastQuantity != 77 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestMotionDiff(t *testing.T) {
	e := newEnv(t)
	if rec := e.do("GET", "/api/motion/diff.jpg", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first diff, got %d", rec.Code)
	}
	e.mon.diff = frame.Blank(4, 4, frame.White)
	rec := e.do("GET", "/api/motion/diff.jpg", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestEvents(t *testing.T) {
	e := newEnv(t)
	if rec := e.do("GET", "/api/events/latest", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	ev, err := e.store.SaveEvent([]byte("jpeg"), 64, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	rec := e.do("GET", "/api/events", nil)
	var list []*storage.Event
	decodeData(t, rec, &list)
	if len(list) != 1 || list[0].Quantity != 64 {
		t.Fatalf("unexpected events %+v", list)
	}

	rec = e.do("GET", "/api/events/"+ev.File, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "jpeg" {
		t.Fatalf("unexpected image response %d %q", rec.Code, rec.Body.String())
	}
	if rec := e.do("GET", "/api/events/..%2Finfo.json", nil); rec.Code == http.StatusOK {
		t.Fatal("path traversal served a file")
	}
	if rec := e.do("GET", "/api/events/"+storage.DefaultInfoFile, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for the event index, got %d", rec.Code)
	}
	if rec := e.do("GET", "/api/events/none.jpg", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPhoto(t *testing.T) {
	e := newEnv(t)
	rec := e.do("POST", "/api/photo?width=640&height=480&quality=80", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "640x480@80" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec := e.do("POST", "/api/photo?width=abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVideo(t *testing.T) {
	e := newEnv(t)

	rec := e.do("POST", "/api/video", []byte(`{"name":"clip","width":640,"height":480,"duration":2}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected code %d: %s", rec.Code, rec.Body.String())
	}
	var resp videoResponse
	decodeData(t, rec, &resp)
	if resp.Frames != 42 || !strings.HasSuffix(resp.Path, "clip.avi") {
		t.Fatalf("unexpected response %+v", resp)
	}

	if filepath.Dir(e.cam.recorded) != e.store.VideosDir() {
		t.Fatalf("recorded outside the videos dir: %s", e.cam.recorded)
	}

	// callers can not choose where the file lands
	outside := filepath.Join(t.TempDir(), "overwrite-me.avi")
	for _, body := range []string{
		fmt.Sprintf(`{"path":%q,"width":640,"height":480,"duration":2}`, outside),
		`{"name":"../../overwrite-me","width":640,"height":480,"duration":2}`,
		`{"name":"/etc/overwrite-me","width":640,"height":480,"duration":2}`,
	} {
		e.cam.recorded = ""
		rec = e.do("POST", "/api/video", []byte(body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		if e.cam.recorded != "" {
			t.Fatalf("%s: recorded %s", body, e.cam.recorded)
		}
	}

	// a missing videos dir surfaces the camera's invalid path error
	if err := os.RemoveAll(e.store.VideosDir()); err != nil {
		t.Fatal(err)
	}
	rec = e.do("POST", "/api/video", []byte(`{"name":"clip","width":640,"height":480,"duration":2}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid path, got %d", rec.Code)
	}
	rec = e.do("POST", "/api/video", []byte(`{"width":640,"height":480}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing duration, got %d", rec.Code)
	}
}

func TestIndicator(t *testing.T) {
	e := newEnv(t)
	rec := e.do("PUT", "/api/indicator?on=true", nil)
	var st indicatorStatus
	decodeData(t, rec, &st)
	if !e.ind.on || !st.On || st.Available {
		t.Fatalf("unexpected indicator status %+v, set %t", st, e.ind.on)
	}
	if rec := e.do("PUT", "/api/indicator?on=maybe", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSettings(t *testing.T) {
	e := newEnv(t)
	rec := e.do("PUT", "/api/camera/settings", []byte(`{"brightness":70}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected code %d: %s", rec.Code, rec.Body.String())
	}
	if e.cam.settings.Brightness != 70 || e.cam.settings.AWBMode != "auto" {
		t.Fatalf("unexpected settings %+v", e.cam.settings)
	}
	if rec := e.do("PUT", "/api/camera/settings", []byte(`{"iso":123}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = e.do("GET", "/api/camera/settings", nil)
	var s camera.Settings
	decodeData(t, rec, &s)
	if s.Brightness != 70 {
		t.Fatalf("unexpected brightness %d", s.Brightness)
	}
}

func TestUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	(&Handlers{}).Register(r.Group("/api"))
	for _, target := range []string{"/api/motion/status", "/api/events", "/api/camera/settings"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", target, rec.Code)
		}
	}
}

func TestMotionWebsocket(t *testing.T) {
	e := newEnv(t)
	svr := httptest.NewServer(e.router)
	defer svr.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(svr.URL, "http")+"/api/motion/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	e.mon.events <- monitor.Event{Quantity: 99, Motion: true}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got monitor.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Quantity != 99 || !got.Motion {
		t.Fatalf("unexpected event %+v", got)
	}
}
