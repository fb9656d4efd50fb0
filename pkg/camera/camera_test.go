package camera

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"
)

func TestCheckTarget(t *testing.T) {
	dir := t.TempDir()
	if err := CheckTarget(filepath.Join(dir, "out.avi")); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"", filepath.Join(dir, "missing", "out.avi")} {
		if err := CheckTarget(p); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("%q: expected ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestRecordVideoInvalidPath(t *testing.T) {
	ctl := NewController(New(context.Background(), DefaultDevice, 0))
	_, err := ctl.RecordVideo(context.Background(), "/nonexistent-dir/clip.avi", 640, 480, time.Second)
	if !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatal(err)
	}

	cases := map[string]func(s *Settings){
		"exposure":   func(s *Settings) { s.Exposure = "moonlight" },
		"awb":        func(s *Settings) { s.AWBMode = "" },
		"iso":        func(s *Settings) { s.ISO = 300 },
		"brightness": func(s *Settings) { s.Brightness = 101 },
		"contrast":   func(s *Settings) { s.Contrast = -101 },
		"effect":     func(s *Settings) { s.ImageFX = "cartoon" },
		"rotation":   func(s *Settings) { s.Rotation = 360 },
	}
	for name, mutate := range cases {
		s := DefaultSettings()
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestSettingsControls(t *testing.T) {
	ctrls := DefaultSettings().Controls()
	want := map[v4l2.CtrlID]v4l2.CtrlValue{
		ctrlBrightness:   50,
		ctrlExposureAuto: exposureAuto,
		ctrlISOAuto:      1,
		ctrlWhiteBalance: 1,
	}
	for id, v := range want {
		if ctrls[id] != v {
			t.Errorf("ctrl %#x: expected %d, got %d", id, v, ctrls[id])
		}
	}
	if _, ok := ctrls[ctrlExposureAbs]; ok {
		t.Error("auto exposure should not set an absolute exposure")
	}

	s := DefaultSettings()
	s.ShutterSpeed = 20
	s.ISO = 400
	s.Rotation = 100
	s.HFlip = true
	ctrls = s.Controls()
	if ctrls[ctrlExposureAuto] != exposureManual || ctrls[ctrlExposureAbs] != 200 {
		t.Errorf("unexpected exposure controls %d %d", ctrls[ctrlExposureAuto], ctrls[ctrlExposureAbs])
	}
	if ctrls[ctrlISOAuto] != 0 || ctrls[ctrlISO] != 3 {
		t.Errorf("unexpected iso controls %d %d", ctrls[ctrlISOAuto], ctrls[ctrlISO])
	}
	if ctrls[ctrlRotate] != 90 || ctrls[ctrlHFlip] != 1 {
		t.Errorf("unexpected rotate/flip %d %d", ctrls[ctrlRotate], ctrls[ctrlHFlip])
	}
}

func TestNextFrame(t *testing.T) {
	ch := make(chan []byte, 1)
	src := []byte{1, 2, 3}
	ch <- src
	got, err := nextFrame(context.Background(), ch, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	src[0] = 9
	if got[0] != 1 {
		t.Fatal("frame was not copied")
	}

	if _, err := nextFrame(context.Background(), ch, 10*time.Millisecond); err == nil {
		t.Fatal("expected timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := nextFrame(ctx, ch, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(ch)
	if _, err := nextFrame(context.Background(), ch, time.Second); err == nil {
		t.Fatal("expected closed stream error")
	}
}

func TestIsBusyErr(t *testing.T) {
	if !isBusyErr(errors.New("device or resource busy")) {
		t.Fatal("expected busy")
	}
	if isBusyErr(nil) || isBusyErr(errors.New("no such device")) {
		t.Fatal("unexpected busy")
	}
}

func TestStreamSourceNotStarted(t *testing.T) {
	ctl := NewController(New(context.Background(), DefaultDevice, 0))
	src := NewStreamSource(ctl, 100, 100)
	_, err := src.Capture(context.Background())
	if !errors.Is(err, ErrCapture) || !errors.Is(err, NotStartedErr) {
		t.Fatalf("expected not started capture error, got %v", err)
	}
}
