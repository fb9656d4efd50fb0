package webdav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestHandler(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("jpeg"), 0600); err != nil {
		t.Fatal(err)
	}
	svr := httptest.NewServer(Handler(dir))
	defer svr.Close()

	resp, err := http.Get(svr.URL + "/a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "jpeg" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}
}

func TestStartStop(t *testing.T) {
	w := New(context.Background(), 0, t.TempDir())
	if w.Running() {
		t.Fatal("should not be running")
	}
	w.Start()
	if !w.Running() {
		t.Fatal("should be running")
	}
	w.Stop()
	if w.Running() {
		t.Fatal("should be stopped")
	}
}
