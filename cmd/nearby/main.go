// Package main is a terminal dashboard for the commutedeck API. It shows the
// closest stations to a fixed position and the live status of the lines
// serving them, refreshing until interrupted.
//
// Usage:
//
//	nearby -lat 35.681 -lng 139.767 [-api http://localhost:8080] [-once]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutedeck/commutedeck/internal/apiclient"
	"github.com/commutedeck/commutedeck/internal/config"
	"github.com/commutedeck/commutedeck/internal/geo"
	"github.com/commutedeck/commutedeck/internal/nearby"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("nearby", flag.ContinueOnError)
	fs.SetOutput(stderr)
	lat := fs.Float64("lat", 0, "latitude of the position")
	lng := fs.Float64("lng", 0, "longitude of the position")
	apiURL := fs.String("api", cfg.APIBaseURL, "commutedeck API base URL")
	radius := fs.Int("radius", nearby.DefaultRadiusMeters, "search radius in meters")
	poll := fs.Duration("poll", cfg.SessionPollPeriod, "status refresh interval")
	once := fs.Bool("once", false, "print one result and exit")
	verbose := fs.Bool("v", false, "log requests to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["lat"] || !set["lng"] {
		fmt.Fprintln(stderr, "nearby: -lat and -lng are required")
		fs.Usage()
		return 2
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	client := apiclient.NewClient(apiclient.ClientConfig{
		BaseURL: *apiURL,
		Logger:  log,
	})

	agg := nearby.NewAggregator(nearby.Config{
		Stations:     client,
		Railways:     client,
		Statuses:     client,
		Logger:       log,
		RadiusMeters: *radius,
	})

	var outMu sync.Mutex
	session := nearby.NewSession(nearby.SessionConfig{
		Aggregator:    agg,
		Locator:       geo.StaticLocator{Position: geo.Coordinates{Lat: *lat, Lng: *lng}},
		Logger:        log,
		PollInterval:  *poll,
		SideTableSize: cfg.SessionSideTableSz,
		OnUpdate: func(snap nearby.Snapshot) {
			if snap.Phase != nearby.PhaseReady && snap.Phase != nearby.PhaseFailed {
				return
			}
			outMu.Lock()
			defer outMu.Unlock()
			render(stdout, snap)
		},
	})
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.RefreshLocation(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *once {
		return 0
	}

	<-ctx.Done()
	return 0
}
