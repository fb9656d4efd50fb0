package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"picam-motion/pkg/difference"
	"picam-motion/pkg/utils"
	"picam-motion/pkg/utils/image"
)

var (
	tolerance  = flag.Int("t", 15, "per channel tolerance, 0-255")
	aggregator = flag.String("agg", "count", "count or magnitude")
	out        = flag.String("o", "", "write the difference image to this jpeg file")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] a.jpg b.jpg\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	logger := utils.GetLogger()

	a, err := image.LoadFrame(flag.Arg(0))
	if err != nil {
		logger.Fatal(err)
	}
	b, err := image.LoadFrame(flag.Arg(1))
	if err != nil {
		logger.Fatal(err)
	}

	agg, ok := difference.AggregatorByName(*aggregator)
	if !ok {
		logger.Fatalf("unknown aggregator %q", *aggregator)
	}
	d, err := difference.New(*tolerance, difference.WithAggregator(agg))
	if err != nil {
		logger.Fatal(err)
	}
	res, err := d.CompareFramesParallel(context.Background(), a, b)
	if err != nil {
		logger.Fatal(err)
	}
	fmt.Printf("quantity %d, differing %d of %d pixels\n", res.Quantity, res.Differing(), len(res.Mask))

	if *out != "" {
		img, err := difference.ImageFrame(a, b, *tolerance)
		if err != nil {
			logger.Fatal(err)
		}
		if err = image.EncodeJPEGFile(img, *out, image.DefaultQuality); err != nil {
			logger.Fatal(err)
		}
	}
}
