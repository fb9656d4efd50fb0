package storage

import (
	"time"
)

const (
	DefaultEventsDir = "events"
	DefaultVideosDir = "videos"
	DefaultInfoFile  = "info.json"

	DefaultImageExt = ".jpg"
	DefaultVideoExt = ".avi"

	DefaultFilePerm = 0660
	DefaultDirPerm  = 0750
)

// Event is one stored motion snapshot.
type Event struct {
	ID       int       `json:"id"`
	File     string    `json:"file"`
	Quantity int64     `json:"quantity"`
	Time     time.Time `json:"time"`
}

type EventsInfo struct {
	MaxNumber int      `json:"maxNumber"`
	Latest    string   `json:"latest"`
	Events    []*Event `json:"events"`

	UpdateAt time.Time `json:"updateAt"`
}

type File struct {
	Name    string    `json:"name"`
	Size    string    `json:"size"`
	ModTime time.Time `json:"modTime"`
}
