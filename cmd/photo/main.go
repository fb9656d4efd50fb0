package main

import (
	"context"
	"flag"
	"os"
	"time"

	"picam-motion/pkg/camera"
	"picam-motion/pkg/utils"
	"picam-motion/pkg/utils/image"
)

var (
	device   = flag.String("device", camera.DefaultDevice, "video device")
	fps      = flag.Int("fps", camera.DefaultFPS, "frames per second for videos")
	width    = flag.Int("width", 1280, "")
	height   = flag.Int("height", 720, "")
	quality  = flag.Int("quality", image.DefaultQuality, "jpeg quality, 1-100")
	duration = flag.Duration("video", 0, "record a video of this length instead of a photo")
	out      = flag.String("o", "photo.jpg", "output file")
)

func main() {
	flag.Parse()
	logger := utils.GetLogger()

	ctx, stop := utils.SignalContext(context.Background())
	defer stop()

	ctl := camera.NewController(camera.New(ctx, *device, *fps))

	if *duration > 0 {
		n, err := ctl.RecordVideo(ctx, *out, *width, *height, *duration)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Infof("wrote %d frames to %s", n, *out)
		return
	}

	start := time.Now()
	data, err := ctl.CapturePhoto(ctx, *width, *height, *quality)
	if err != nil {
		logger.Fatal(err)
	}
	if err = os.WriteFile(*out, data, 0660); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("wrote %s in %s", *out, time.Since(start))
}
