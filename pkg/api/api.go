// Package api exposes the motion monitor, snapshots and camera over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"picam-motion/pkg/camera"
	"picam-motion/pkg/frame"
	"picam-motion/pkg/indicator"
	"picam-motion/pkg/monitor"
	"picam-motion/pkg/storage"
	"picam-motion/pkg/utils"
	"picam-motion/pkg/utils/image"
	"picam-motion/pkg/utils/ps"
)

const (
	webDavStart    = "start"
	webDavShutdown = "shutdown"

	maxVideoDuration = 10 * time.Minute
	wsWriteTimeout   = 5 * time.Second
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

type Monitor interface {
	Stats() monitor.Stats
	LatestDiff() (*frame.Frame, error)
	Subscribe(buf int) (<-chan monitor.Event, func())
}

type Camera interface {
	CapturePhoto(ctx context.Context, width, height, quality int) ([]byte, error)
	RecordVideo(ctx context.Context, path string, width, height int, duration time.Duration) (int, error)
	Settings() camera.Settings
	UpdateSettings(s camera.Settings) error
}

type Store interface {
	Dir() string
	ListEvents() ([]*storage.Event, error)
	LatestEvent() (*storage.Event, error)
	GetImage(name string) ([]byte, error)
	VideoPath(name string) (string, error)
	ListVideos() ([]storage.File, error)
}

type FileShare interface {
	Start()
	Stop()
	Running() bool
	Port() int
}

// Handlers serves the REST API. Nil dependencies disable their routes' work
// and answer 503.
type Handlers struct {
	Monitor   Monitor
	Camera    Camera
	Store     Store
	Webdav    FileShare
	Indicator indicator.Indicator
	// reports whether indicator hardware was found
	IndicatorAvailable func() bool

	upgrader websocket.Upgrader
}

func (h *Handlers) Register(r gin.IRouter) {
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	motionRouter := r.Group("/motion")
	motionRouter.GET("/status", h.motionStatus)
	motionRouter.GET("/diff.jpg", h.motionDiff)
	motionRouter.GET("/ws", h.motionEvents)

	eventRouter := r.Group("/events")
	eventRouter.GET("", h.listEvents)
	eventRouter.GET("/latest", h.latestEvent)
	eventRouter.GET("/:name", h.eventImage)

	r.POST("/photo", h.takePhoto)
	r.POST("/video", h.recordVideo)
	r.GET("/videos", h.listVideos)
	r.PUT("/indicator", h.setIndicator)

	cameraRouter := r.Group("/camera")
	cameraRouter.GET("/settings", h.getSettings)
	cameraRouter.PUT("/settings", h.updateSettings)

	deviceRouter := r.Group("/device")
	deviceRouter.GET("/status", h.deviceStatus)
	deviceRouter.PUT("/webdav", h.ctlWebdav)
}

func (h *Handlers) motionStatus(c *gin.Context) {
	if h.Monitor == nil {
		unavailable(c, "monitor")
		return
	}
	c.JSON(http.StatusOK, jsend.Success(h.Monitor.Stats()))
}

func (h *Handlers) motionDiff(c *gin.Context) {
	if h.Monitor == nil {
		unavailable(c, "monitor")
		return
	}
	f, err := h.Monitor.LatestDiff()
	if err != nil {
		internalErr(c, err)
		return
	}
	if f == nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("no frames compared yet"))
		return
	}
	data, err := image.FrameToJPEG(f, image.DefaultQuality)
	if err != nil {
		internalErr(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func (h *Handlers) motionEvents(c *gin.Context) {
	if h.Monitor == nil {
		unavailable(c, "monitor")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("upgrade websocket err: %s", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Monitor.Subscribe(16)
	defer cancel()

	// the read loop only detects the peer going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "monitor stopped"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(e); err != nil {
				logger.Debugf("write websocket err: %s", err)
				return
			}
		}
	}
}

func (h *Handlers) listEvents(c *gin.Context) {
	if h.Store == nil {
		unavailable(c, "storage")
		return
	}
	events, err := h.Store.ListEvents()
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(events))
}

func (h *Handlers) latestEvent(c *gin.Context) {
	if h.Store == nil {
		unavailable(c, "storage")
		return
	}
	e, err := h.Store.LatestEvent()
	if err != nil {
		storageErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(e))
}

func (h *Handlers) eventImage(c *gin.Context) {
	if h.Store == nil {
		unavailable(c, "storage")
		return
	}
	data, err := h.Store.GetImage(c.Param("name"))
	if err != nil {
		storageErr(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func (h *Handlers) takePhoto(c *gin.Context) {
	if h.Camera == nil {
		unavailable(c, "camera")
		return
	}
	width, err1 := intQuery(c, "width", 1280)
	height, err2 := intQuery(c, "height", 720)
	quality, err3 := intQuery(c, "quality", image.DefaultQuality)
	if err := errors.Join(err1, err2, err3); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if width <= 0 || height <= 0 {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("width and height must be positive"))
		return
	}

	data, err := h.Camera.CapturePhoto(c.Request.Context(), width, height, quality)
	if err != nil {
		internalErr(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

type videoRequest struct {
	// Name is placed in the videos directory. Path is only decoded to be
	// rejected, recordings never leave the storage dir.
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	Width    int     `json:"width" binding:"required,min=1"`
	Height   int     `json:"height" binding:"required,min=1"`
	Duration float64 `json:"duration" binding:"required,gt=0"` // seconds
}

type videoResponse struct {
	Path   string `json:"path"`
	Frames int    `json:"frames"`
}

func (h *Handlers) recordVideo(c *gin.Context) {
	if h.Camera == nil {
		unavailable(c, "camera")
		return
	}
	var req videoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	d := time.Duration(req.Duration * float64(time.Second))
	if d > maxVideoDuration {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("duration longer than %s", maxVideoDuration)))
		return
	}

	if req.Path != "" {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("%s: path is not accepted, use name", camera.ErrInvalidPath)))
		return
	}
	if h.Store == nil {
		unavailable(c, "storage")
		return
	}
	name := req.Name
	if name == "" {
		name = utils.Now().Format("20060102-150405")
	}
	path, err := h.Store.VideoPath(name)
	if err != nil {
		storageErr(c, err)
		return
	}

	n, err := h.Camera.RecordVideo(c.Request.Context(), path, req.Width, req.Height, d)
	if err != nil {
		if errors.Is(err, camera.ErrInvalidPath) {
			c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
			return
		}
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(videoResponse{Path: path, Frames: n}))
}

func (h *Handlers) listVideos(c *gin.Context) {
	if h.Store == nil {
		unavailable(c, "storage")
		return
	}
	files, err := h.Store.ListVideos()
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(files))
}

type indicatorStatus struct {
	Available bool `json:"available"`
	On        bool `json:"on"`
}

func (h *Handlers) setIndicator(c *gin.Context) {
	on, err := strconv.ParseBool(c.Query("on"))
	if err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("on must be true or false"))
		return
	}
	if h.Indicator != nil {
		h.Indicator.Set(on)
	}
	available := false
	if h.IndicatorAvailable != nil {
		available = h.IndicatorAvailable()
	}

	c.JSON(http.StatusOK, jsend.Success(indicatorStatus{Available: available, On: on}))
}

func (h *Handlers) getSettings(c *gin.Context) {
	if h.Camera == nil {
		unavailable(c, "camera")
		return
	}
	c.JSON(http.StatusOK, jsend.Success(h.Camera.Settings()))
}

func (h *Handlers) updateSettings(c *gin.Context) {
	if h.Camera == nil {
		unavailable(c, "camera")
		return
	}
	s := h.Camera.Settings()
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if err := h.Camera.UpdateSettings(s); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}

	c.JSON(http.StatusOK, jsend.Success(h.Camera.Settings()))
}

func (h *Handlers) deviceStatus(c *gin.Context) {
	dir := "."
	if h.Store != nil {
		dir = h.Store.Dir()
	}
	status, err := ps.Collect(dir)
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(status))
}

func (h *Handlers) ctlWebdav(c *gin.Context) {
	if h.Webdav == nil {
		unavailable(c, "webdav")
		return
	}
	switch c.Query("op") {
	case webDavStart:
		if h.Webdav.Running() {
			c.JSON(http.StatusOK, jsend.Success("the webdav service is already enabled"))
			return
		}
		h.Webdav.Start()
		c.JSON(http.StatusOK, jsend.Success(h.Webdav.Port()))
	case webDavShutdown:
		if !h.Webdav.Running() {
			c.JSON(http.StatusOK, jsend.SimpleErr("the webdav service has been shut down"))
			return
		}
		h.Webdav.Stop()
		c.JSON(http.StatusOK, jsend.Success(nil))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}

	return n, nil
}

func storageErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
	case errors.Is(err, storage.ErrInvalidName):
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
	default:
		internalErr(c, err)
	}
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, jsend.SimpleErr(what+" is not available"))
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
