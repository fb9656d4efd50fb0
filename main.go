package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"picam-motion/pkg/api"
	"picam-motion/pkg/camera"
	"picam-motion/pkg/config"
	"picam-motion/pkg/difference"
	"picam-motion/pkg/indicator"
	"picam-motion/pkg/metrics"
	"picam-motion/pkg/monitor"
	"picam-motion/pkg/notify"
	"picam-motion/pkg/storage"
	"picam-motion/pkg/utils"
	"picam-motion/pkg/utils/image"
	"picam-motion/pkg/webdav"
)

var (
	configPath = flag.String("config", "", "yaml config file, defaults to $PICAM_CONFIG")
	envFile    = flag.String("env", ".env", "env file loaded before the config")
	port       = flag.Int("port", 0, "api port, overrides the config")
	storageDir = flag.String("dir", "", "snapshot directory, overrides the config")
	staticsDir = flag.String("statics", "", "ui directory, overrides the config")
	logLevel   = flag.String("log-level", "", "debug, info, warn or error")

	logger *zap.SugaredLogger
	mt     = metrics.New()
)

func init() {
	logger = utils.GetLogger()
	flag.Parse()
}

func main() {
	defer logger.Sync()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		logger.Warnf("load env file %s: %s", *envFile, err)
	}
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal(err)
	}
	if err = utils.SetLevel(cfg.LogLevel); err != nil {
		logger.Warnf("invalid log level %q: %s", cfg.LogLevel, err)
	}

	ctx, stop := utils.SignalContext(context.Background())
	defer stop()

	if cfg.NTP.Server != "" {
		if _, err := utils.SyncClock(cfg.NTP.Server, cfg.NTP.Timeout); err != nil {
			logger.Warnf("clock sync with %s failed, using local clock: %s", cfg.NTP.Server, err)
		}
	}

	if cfg.Indicator.Enabled {
		indicator.Init(cfg.Indicator.Pin)
	}
	defer indicator.Close()

	// init storage
	stg, err := storage.New(cfg.Storage.Dir)
	if err != nil {
		logger.Fatal(err)
	}
	defer stg.Close()
	if cfg.Storage.Retention > 0 {
		if err = stg.StartRetention(cfg.Storage.Schedule, cfg.Storage.Retention); err != nil {
			logger.Fatal(err)
		}
	}

	// init camera
	cam := camera.New(ctx, cfg.Camera.Device, cfg.Camera.FPS)
	if err = cam.UpdateSettings(cfg.Camera.Settings); err != nil {
		logger.Fatal(err)
	}
	ctl := camera.NewController(cam)

	mon, err := newMonitor(ctx, cfg, ctl, stg)
	if err != nil {
		logger.Fatal(err)
	}
	go func() {
		if err := mon.Run(ctx); err != nil {
			logger.Errorf("monitor err: %s", err)
		}
	}()

	wd := webdav.New(ctx, cfg.Server.WebdavPort, stg.Dir())
	defer wd.Stop()

	// init gin
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	if cfg.Server.StaticsDir != "" {
		if err := registerStaticsDir(r, cfg.Server.StaticsDir, "/"); err != nil {
			logger.Fatal(err)
		}
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})
	r.GET("/metrics", gin.WrapH(mt.Handler()))

	handlers := &api.Handlers{
		Monitor:            mon,
		Camera:             ctl,
		Store:              stg,
		Webdav:             wd,
		Indicator:          indicator.Default(),
		IndicatorAvailable: indicator.Available,
	}
	handlers.Register(r.Group("/api"))

	if err = utils.ListenAndServe(ctx, r, cfg.Server.Port); err != nil {
		logger.Error(err)
	}
}

func newMonitor(ctx context.Context, cfg *config.Config, ctl *camera.Controller, stg *storage.Storage) (*monitor.Monitor, error) {
	m := cfg.Motion
	agg, _ := difference.AggregatorByName(m.Aggregator)
	d, err := difference.New(m.Tolerance,
		difference.WithAggregator(agg),
		difference.WithWorkers(m.Workers),
	)
	if err != nil {
		return nil, err
	}

	var src monitor.Source
	if cfg.Camera.Stream {
		ss := camera.NewStreamSource(ctl, m.Width, m.Height)
		if err := ss.Start(); err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			_ = ss.Close()
		}()
		src = ss
	} else {
		src = camera.NewShotSource(ctl, m.Width, m.Height)
	}

	pub, err := notify.New(notify.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topic:    cfg.MQTT.Topic,
		QoS:      cfg.MQTT.QoS,
	})
	if err != nil {
		logger.Warnf("mqtt: %s", err)
	}
	go func() {
		<-ctx.Done()
		pub.Close()
	}()

	opts := []monitor.Option{
		monitor.WithIndicator(indicator.Default()),
		monitor.WithPublisher(pub),
		monitor.WithMetrics(mt),
	}
	if m.Snapshot {
		opts = append(opts, monitor.WithStore(stg, func(ctx context.Context) ([]byte, error) {
			return ctl.CapturePhoto(ctx, m.SnapshotWidth, m.SnapshotHeight, image.DefaultQuality)
		}))
	}

	return monitor.New(src, d, monitor.Options{
		Interval:    m.Interval,
		MinQuantity: m.MinQuantity,
		Cooldown:    m.Cooldown,
	}, opts...)
}

func loadConfig() (*config.Config, error) {
	p := *configPath
	if p == "" {
		p = os.Getenv("PICAM_CONFIG")
	}
	cfg, err := config.Load(p)
	if err != nil {
		return nil, err
	}

	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *storageDir != "" {
		cfg.Storage.Dir = *storageDir
	}
	if *staticsDir != "" {
		cfg.Server.StaticsDir = *staticsDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if b := os.Getenv("PICAM_MQTT_BROKER"); b != "" {
		cfg.MQTT.Broker = b
	}
	if s := os.Getenv("PICAM_NTP_SERVER"); s != "" {
		cfg.NTP.Server = s
	}

	return cfg, cfg.Validate()
}

func registerStaticsDir(group gin.IRoutes, dir, relativeGroup string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("the specified directory %s does not exist", dir)
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	group.StaticFile(relativeGroup, filepath.Join(dir, "index.html"))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relativePath := path.Join(relativeGroup, strings.Replace(filepath.ToSlash(p), dir, "", 1))
			group.StaticFile(relativePath, p)
		}
		return nil
	})
}
