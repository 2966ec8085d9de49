// Package worker runs background jobs: the railway status watcher and the
// railway index rebuild, triggered by a ticker or by Pub/Sub messages.
package worker

import (
	"time"
)

// Job types accepted from Pub/Sub.
const (
	JobStatusCheck  = "status_check"
	JobIndexRebuild = "index_rebuild"
)

// WatchConfig holds configuration for the status watch job.
type WatchConfig struct {
	// Railways restricts the watch to these railway IDs.
	// If empty, every railway in the feed is watched.
	Railways []string

	// Timeout bounds one run, fetch and persistence included.
	// Default: 30 seconds
	Timeout time.Duration

	// Interval is the period of Loop.
	// Default: 3 minutes
	Interval time.Duration
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Timeout:  30 * time.Second,
		Interval: 3 * time.Minute,
	}
}

func (c WatchConfig) withDefaults() WatchConfig {
	def := DefaultWatchConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	return c
}

// watchSet returns the watch list as a set, or nil when everything is watched.
func (c WatchConfig) watchSet() map[string]struct{} {
	if len(c.Railways) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(c.Railways))
	for _, id := range c.Railways {
		set[id] = struct{}{}
	}
	return set
}
