package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"picam-motion/pkg/utils"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidName = errors.New("invalid file name")
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Storage keeps motion snapshots and recorded videos under one directory.
type Storage struct {
	lock sync.Mutex
	dir  string
	cron *cron.Cron

	// now is swapped in tests
	now func() time.Time
}

func New(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage path can not be empty")
	}
	s := &Storage{
		dir: dir,
		now: utils.Now,
	}
	if err := mkdirAll(s.eventsDir(), s.VideosDir()); err != nil {
		return nil, err
	}
	if err := s.checkInitInfo(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Dir() string {
	return s.dir
}

func (s *Storage) VideosDir() string {
	return filepath.Join(s.dir, DefaultVideosDir)
}

// SaveEvent stores a JPEG snapshot of a motion event.
func (s *Storage) SaveEvent(image []byte, quantity int64, t time.Time) (*Event, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	info, err := s.loadInfo()
	if err != nil {
		return nil, err
	}
	e := &Event{
		ID:       info.MaxNumber,
		File:     fmt.Sprintf("%s-%d%s", t.Format("20060102-150405"), info.MaxNumber, DefaultImageExt),
		Quantity: quantity,
		Time:     t,
	}
	if err = os.WriteFile(filepath.Join(s.eventsDir(), e.File), image, DefaultFilePerm); err != nil {
		return nil, err
	}

	info.MaxNumber++
	info.Latest = e.File
	info.Events = append(info.Events, e)
	if err = s.dumpInfo(info); err != nil {
		return nil, err
	}

	return e, nil
}

func (s *Storage) ListEvents() ([]*Event, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	info, err := s.loadInfo()
	if err != nil {
		return nil, err
	}

	return info.Events, nil
}

func (s *Storage) LatestEvent() (*Event, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	info, err := s.loadInfo()
	if err != nil {
		return nil, err
	}
	if len(info.Events) == 0 {
		return nil, ErrNotFound
	}

	return info.Events[len(info.Events)-1], nil
}

// GetImage reads a snapshot by file name. Only DefaultImageExt files are served.
func (s *Storage) GetImage(name string) ([]byte, error) {
	if !strings.HasSuffix(name, DefaultImageExt) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p, err := s.resolve(s.eventsDir(), name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("picture %s: %w", name, ErrNotFound)
		}
		return nil, err
	}

	return data, nil
}

// VideoPath returns the path a video called name would be written to.
func (s *Storage) VideoPath(name string) (string, error) {
	if !strings.HasSuffix(name, DefaultVideoExt) {
		name += DefaultVideoExt
	}
	return s.resolve(s.VideosDir(), name)
}

// ListVideos lists recorded videos, newest first.
func (s *Storage) ListVideos() ([]File, error) {
	entries, err := os.ReadDir(s.VideosDir())
	if err != nil {
		return nil, err
	}
	var res []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), DefaultVideoExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		res = append(res, File{
			Name:    e.Name(),
			Size:    humanize.IBytes(uint64(fi.Size())),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ModTime.After(res[j].ModTime)
	})

	return res, nil
}

// Prune removes snapshots older than maxAge and returns how many were removed.
func (s *Storage) Prune(maxAge time.Duration) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	info, err := s.loadInfo()
	if err != nil {
		return 0, err
	}
	deadline := s.now().Add(-maxAge)
	kept := info.Events[:0]
	removed := 0
	for _, e := range info.Events {
		if !e.Time.Before(deadline) {
			kept = append(kept, e)
			continue
		}
		err := os.Remove(filepath.Join(s.eventsDir(), e.File))
		if err != nil && !os.IsNotExist(err) {
			logger.Warnf("remove snapshot %s err: %s", e.File, err)
			kept = append(kept, e)
			continue
		}
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	info.Events = kept
	if len(kept) == 0 {
		info.Latest = ""
	}

	return removed, s.dumpInfo(info)
}

// StartRetention schedules Prune(maxAge) with a cron spec such as "@hourly".
func (s *Storage) StartRetention(spec string, maxAge time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cron != nil {
		return fmt.Errorf("retention already started")
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := s.Prune(maxAge)
		if err != nil {
			logger.Errorf("prune snapshots err: %s", err)
			return
		}
		if n > 0 {
			logger.Infof("pruned %d snapshots older than %s", n, maxAge)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c

	return nil
}

func (s *Storage) Close() error {
	s.lock.Lock()
	c := s.cron
	s.cron = nil
	s.lock.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	return nil
}

func (s *Storage) resolve(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return filepath.Join(dir, name), nil
}

func (s *Storage) eventsDir() string {
	return filepath.Join(s.dir, DefaultEventsDir)
}

func (s *Storage) infoPath() string {
	return filepath.Join(s.eventsDir(), DefaultInfoFile)
}

func (s *Storage) loadInfo() (*EventsInfo, error) {
	data, err := os.ReadFile(s.infoPath())
	if err != nil {
		return nil, fmt.Errorf("read events info err: %w", err)
	}
	info := &EventsInfo{}
	if err = json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("unmarshal events info err: %w", err)
	}

	return info, nil
}

func (s *Storage) dumpInfo(info *EventsInfo) error {
	info.UpdateAt = s.now()
	if info.Events == nil {
		info.Events = make([]*Event, 0)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return os.WriteFile(s.infoPath(), data, DefaultFilePerm)
}

func (s *Storage) checkInitInfo() error {
	_, err := os.Stat(s.infoPath())
	if os.IsNotExist(err) {
		return s.dumpInfo(&EventsInfo{})
	}

	return err
}

func mkdirAll(dirs ...string) error {
	for _, d := range dirs {
		err := os.MkdirAll(d, DefaultDirPerm)
		if err != nil {
			return err
		}
	}

	return nil
}
