package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir())
	checkErr(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEvents(t *testing.T) {
	s := newStorage(t)

	if _, err := s.LatestEvent(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e1, err := s.SaveEvent([]byte("first"), 60, t0)
	checkErr(t, err)
	e2, err := s.SaveEvent([]byte("second"), 75, t0.Add(time.Second))
	checkErr(t, err)
	if e1.File == e2.File {
		t.Fatalf("duplicate file name %s", e1.File)
	}

	list, err := s.ListEvents()
	checkErr(t, err)
	if len(list) != 2 || list[0].Quantity != 60 || list[1].Quantity != 75 {
		t.Fatalf("unexpected events %+v", list)
	}

	latest, err := s.LatestEvent()
	checkErr(t, err)
	if diff := cmp.Diff(e2, latest); diff != "" {
		t.Fatalf("latest mismatch (-want +got):\n%s", diff)
	}

	data, err := s.GetImage(e1.File)
	checkErr(t, err)
	if string(data) != "first" {
		t.Fatalf("unexpected image %q", data)
	}

	// reopening keeps the index
	s2, err := New(s.Dir())
	checkErr(t, err)
	list, err = s2.ListEvents()
	checkErr(t, err)
	if len(list) != 2 {
		t.Fatalf("expected 2 events after reopen, got %d", len(list))
	}
}

func TestGetImageInvalidName(t *testing.T) {
	s := newStorage(t)
	for _, name := range []string{"", "../info.json", "a/b.jpg", ".hidden", DefaultInfoFile, "notes.txt", ".jpg"} {
		if _, err := s.GetImage(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("%q: expected ErrInvalidName, got %v", name, err)
		}
	}
	if _, err := s.GetImage("missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	s := newStorage(t)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old, err := s.SaveEvent([]byte("old"), 1, now.Add(-48*time.Hour))
	checkErr(t, err)
	_, err = s.SaveEvent([]byte("new"), 2, now.Add(-time.Hour))
	checkErr(t, err)

	n, err := s.Prune(24 * time.Hour)
	checkErr(t, err)
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	list, err := s.ListEvents()
	checkErr(t, err)
	if len(list) != 1 || list[0].Quantity != 2 {
		t.Fatalf("unexpected events %+v", list)
	}
	if _, err := os.Stat(filepath.Join(s.eventsDir(), old.File)); !os.IsNotExist(err) {
		t.Fatalf("old snapshot still on disk: %v", err)
	}
}

func TestStartRetention(t *testing.T) {
	s := newStorage(t)
	if err := s.StartRetention("not a schedule", time.Hour); err == nil {
		t.Fatal("expected invalid schedule error")
	}
	checkErr(t, s.StartRetention("@hourly", time.Hour))
	if err := s.StartRetention("@hourly", time.Hour); err == nil {
		t.Fatal("expected already started error")
	}
}

func TestVideos(t *testing.T) {
	s := newStorage(t)
	p, err := s.VideoPath("clip")
	checkErr(t, err)
	if filepath.Base(p) != "clip.avi" {
		t.Fatalf("unexpected video path %s", p)
	}
	checkErr(t, os.WriteFile(p, make([]byte, 2048), DefaultFilePerm))

	files, err := s.ListVideos()
	checkErr(t, err)
	if len(files) != 1 || files[0].Name != "clip.avi" || files[0].Size != "2.0 KiB" {
		t.Fatalf("unexpected videos %+v", files)
	}

	if _, err := s.VideoPath("../clip"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func checkErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
