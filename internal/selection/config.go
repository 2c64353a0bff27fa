package selection

import (
	"errors"
	"flag"
	"fmt"
	"regexp"
	"time"
)

// Config tunes a Session.
type Config struct {
	ClusterDebounce time.Duration
	ClusterTimeout  time.Duration
	PrefetchDelay   time.Duration
	HighlightColor  string
	DetailCacheSize int
	PageSize        int
}

// DefaultConfig returns the values RegisterFlags installs.
func DefaultConfig() Config {
	return Config{
		ClusterDebounce: 100 * time.Millisecond,
		ClusterTimeout:  5 * time.Second,
		PrefetchDelay:   400 * time.Millisecond,
		HighlightColor:  "#f97316",
		DetailCacheSize: 64,
		PageSize:        50,
	}
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	d := DefaultConfig()
	fs.DurationVar(&c.ClusterDebounce, "cluster-debounce", d.ClusterDebounce, "delay after a selection change before cluster highlights are recomputed")
	fs.DurationVar(&c.ClusterTimeout, "cluster-timeout", d.ClusterTimeout, "upper bound on one cluster highlight recomputation")
	fs.DurationVar(&c.PrefetchDelay, "incident-prefetch-delay", d.PrefetchDelay, "hover time before incident detail is prefetched")
	fs.StringVar(&c.HighlightColor, "cluster-highlight-color", d.HighlightColor, "paint color for clusters containing selected records")
	fs.IntVar(&c.DetailCacheSize, "incident-cache-size", d.DetailCacheSize, "incident details kept in the session cache (1..4096)")
	fs.IntVar(&c.PageSize, "incident-page-size", d.PageSize, "incidents fetched per list page (1..200)")
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.ClusterDebounce <= 0 || c.ClusterDebounce > 5*time.Second {
		errs = append(errs, fmt.Errorf("invalid CLUSTER_DEBOUNCE %s (must be >0 and <=5s)", c.ClusterDebounce))
	}
	if c.ClusterTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid CLUSTER_TIMEOUT %s (must be >0)", c.ClusterTimeout))
	}
	if c.PrefetchDelay <= 0 {
		errs = append(errs, fmt.Errorf("invalid INCIDENT_PREFETCH_DELAY %s (must be >0)", c.PrefetchDelay))
	}
	if !hexColor.MatchString(c.HighlightColor) {
		errs = append(errs, fmt.Errorf("invalid CLUSTER_HIGHLIGHT_COLOR %q (must be #rgb or #rrggbb)", c.HighlightColor))
	}
	if c.DetailCacheSize <= 0 || c.DetailCacheSize > 4096 {
		errs = append(errs, fmt.Errorf("invalid INCIDENT_CACHE_SIZE %d (must be 1..4096)", c.DetailCacheSize))
	}
	if c.PageSize <= 0 || c.PageSize > 200 {
		errs = append(errs, fmt.Errorf("invalid INCIDENT_PAGE_SIZE %d (must be 1..200)", c.PageSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
