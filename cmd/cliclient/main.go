// cliclient renders one view of the Mandelbrot set and saves it as a PNG
// file. The view is a named landmark, an explicit offset and zoom, or a
// random search (reproducible with -seed).

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"golang.org/x/text/language"

	mandel "github.com/marben/ingemi"
	"github.com/marben/ingemi/present"
	"github.com/marben/ingemi/progressive"
)

func main() {
	log.Printf("Starting CLI client...")
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

// run parses args, renders the requested view and writes it out.
func run(args []string) error {
	cfg := progressive.DefaultConfig()
	cfg.Width, cfg.Height = 1920, 1080
	cfg.Levels = 1

	fs := flag.NewFlagSet("cliclient", flag.ContinueOnError)
	out := fs.String("o", "mandel.png", "output file")
	landmark := fs.String("landmark", "", "render a named landmark (seahorse, elephant, spiral, triple-spiral, dragon, mini-spiral)")
	x := fs.Float64("x", 0, "real part of the view centre")
	y := fs.Float64("y", 0, "imaginary part of the view centre")
	zoom := fs.Float64("zoom", 0, "zoom, 1 shows the whole set; enables -x and -y")
	random := fs.Bool("random", false, "search for an interesting random view")
	seed := fs.Uint64("seed", 0, "seed for -random, 0 picks one from the clock")
	status := fs.Bool("status", false, "draw the status line into the image")
	verbose := fs.Bool("v", false, "log render passes")
	fs.IntVar(&cfg.Width, "w", cfg.Width, "image width")
	fs.IntVar(&cfg.Height, "h", cfg.Height, "image height")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "render goroutines")
	fs.IntVar(&cfg.MaxIteration, "maxiter", cfg.MaxIteration, "iteration budget per pixel")
	fs.Float64Var(&cfg.SampleFactor, "sample", cfg.SampleFactor, "output pixels per rendered pixel, below 1 supersamples")
	fs.Float64Var(&cfg.StdDevThreshold, "stddev", cfg.StdDevThreshold, "minimum spread of a random view")
	fs.DurationVar(&cfg.PassTimeout, "timeout", 5*time.Minute, "render deadline, 0 disables it")
	fs.IntVar(&cfg.MaxPixels, "maxpixels", cfg.MaxPixels, "largest frame to render, in pixels")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *verbose {
		mandel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var cmd progressive.Command = progressive.Refresh{}
	switch {
	case *random:
		if *seed == 0 {
			*seed = uint64(time.Now().UnixNano())
		}
		log.Printf("Random view with seed %d", *seed)
		cfg.Rand = rand.New(rand.NewPCG(*seed, *seed))
		cmd = progressive.Random{}
	case *landmark != "":
		region, ok := mandel.Landmark(*landmark)
		if !ok {
			return fmt.Errorf("unknown landmark %q", *landmark)
		}
		cfg.Viewport = region.Viewport()
	case *zoom != 0:
		cfg.Viewport = mandel.Viewport{OffsetX: *x, OffsetY: *y, Zoom: *zoom}
	}

	ctrl, err := progressive.New(cfg)
	if err != nil {
		return fmt.Errorf("new controller: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("controller: %v", err)
		}
	}()

	log.Printf("Rendering %dx%d...", cfg.Width, cfg.Height)
	ev, err := progressive.Final(ctx, ctrl, cmd)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	log.Printf("Rendered in %s: offset (%v, %v), zoom %v", ev.Elapsed, ev.Viewport.OffsetX, ev.Viewport.OffsetY, ev.Viewport.Zoom)
	if ev.Search != nil && ev.Search.Exhausted {
		log.Printf("Random search gave up after %d attempts, the view may be dull", ev.Search.Attempts)
	}

	img, err := present.Fit(ev.Frame, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	if *status {
		present.Annotate(img, present.Status(language.English, ev.Status))
	}

	log.Printf("Saving rendered image to %q...", *out)
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := present.EncodePNG(f, img); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}

	log.Printf("Image saved to %q", *out)
	return nil
}
