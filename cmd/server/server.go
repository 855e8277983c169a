package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mandel "github.com/marben/ingemi"
	"github.com/marben/ingemi/progressive"
)

// main is the entry point for the Mandelbrot viewer.
// Each browser tab connecting to /ws gets its own controller; rendering
// happens on this machine's CPUs.
func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func run(args []string) error {
	cfg := progressive.DefaultConfig()

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "http listen address")
	verbose := fs.Bool("v", false, "log render passes")
	start := fs.String("start", "", "landmark to open sessions at (seahorse, elephant, spiral, ...)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "render goroutines per session")
	fs.IntVar(&cfg.MaxIteration, "maxiter", cfg.MaxIteration, "iteration budget per pixel")
	fs.IntVar(&cfg.Levels, "levels", cfg.Levels, "progressive passes per view change")
	fs.Float64Var(&cfg.SampleFactor, "sample", cfg.SampleFactor, "client pixels per rendered pixel in the final pass")
	fs.Float64Var(&cfg.StdDevThreshold, "stddev", cfg.StdDevThreshold, "minimum spread of a random view")
	fs.DurationVar(&cfg.PassTimeout, "timeout", cfg.PassTimeout, "deadline for one pass, 0 disables it")
	fs.IntVar(&cfg.MaxPixels, "maxpixels", cfg.MaxPixels, "largest frame to render, in pixels")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *verbose {
		mandel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if *start != "" {
		region, ok := mandel.Landmark(*start)
		if !ok {
			return fmt.Errorf("unknown landmark %q", *start)
		}
		cfg.Viewport = region.Viewport()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := webServer(*addr, cfg)
	httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("httpServer: %w", err)
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
