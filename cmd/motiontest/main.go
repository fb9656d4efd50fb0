package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"picam-motion/pkg/camera"
	"picam-motion/pkg/difference"
	"picam-motion/pkg/indicator"
	"picam-motion/pkg/monitor"
	"picam-motion/pkg/utils"
)

var (
	device    = flag.String("device", camera.DefaultDevice, "video device")
	width     = flag.Int("width", 100, "capture width")
	height    = flag.Int("height", 100, "capture height")
	tolerance = flag.Int("threshold", 15, "per channel tolerance")
	minQty    = flag.Int64("quantity", 50, "minimum quantity that counts as motion")
	interval  = flag.Duration("interval", 500*time.Millisecond, "capture interval")
	pin       = flag.Int("pin", indicator.DefaultPin, "indicator gpio pin")
)

func main() {
	flag.Parse()
	logger := utils.GetLogger()

	ctx, stop := utils.SignalContext(context.Background())
	defer stop()

	if !indicator.Init(*pin) {
		logger.Info("no gpio, running without led")
	}
	defer indicator.Close()

	d, err := difference.New(*tolerance)
	if err != nil {
		logger.Fatal(err)
	}
	ctl := camera.NewController(camera.New(ctx, *device, 0))
	mon, err := monitor.New(camera.NewShotSource(ctl, *width, *height), d,
		monitor.Options{Interval: *interval, MinQuantity: *minQty},
		monitor.WithIndicator(indicator.Default()),
	)
	if err != nil {
		logger.Fatal(err)
	}

	events, cancel := mon.Subscribe(8)
	defer cancel()
	go func() {
		for e := range events {
			if e.Motion {
				fmt.Printf("%s  %6d  motion detected\n", e.Time.Format(time.TimeOnly), e.Quantity)
			} else {
				fmt.Printf("%s  %6d\n", e.Time.Format(time.TimeOnly), e.Quantity)
			}
		}
	}()

	if err := mon.Run(ctx); err != nil {
		logger.Error(err)
	}
	st := mon.Stats()
	fmt.Printf("frames %d, motion %d, capture errors %d\n", st.Frames, st.MotionEvents, st.CaptureErrors)
}
