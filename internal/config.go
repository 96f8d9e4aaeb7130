package internal

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	DeliveryDelay        time.Duration `env:"DELIVERY_DELAY,required=true"`
	PurgeInterval        time.Duration `env:"PURGE_INTERVAL,default=1m"`
	PeakWindow           time.Duration `env:"PEAK_WINDOW,default=1s"`
	HealthInterval       time.Duration `env:"HEALTH_INTERVAL,default=30s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	FeedRatePerSecond    float64       `env:"FEED_RATE_PER_SECOND,default=10"`
	FeedBurst            int           `env:"FEED_BURST,default=5"`
	FeedFetchConcurrency int           `env:"FEED_FETCH_CONCURRENCY,default=4"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	DebugPort            int           `env:"DEBUG_PORT"`
}

func (c Config) Validate() error {
	if c.DeliveryDelay < 0 {
		return fmt.Errorf("DELIVERY_DELAY must not be negative, got %s", c.DeliveryDelay)
	}
	if c.PurgeInterval <= 0 {
		return fmt.Errorf("PURGE_INTERVAL must be positive, got %s", c.PurgeInterval)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL must be positive, got %s", c.HealthInterval)
	}
	if c.FeedFetchConcurrency < 1 {
		return fmt.Errorf("FEED_FETCH_CONCURRENCY must be at least 1, got %d", c.FeedFetchConcurrency)
	}
	if c.FeedRatePerSecond < 0 || c.FeedBurst < 0 {
		return fmt.Errorf("feed rate and burst must not be negative, got %v/%d", c.FeedRatePerSecond, c.FeedBurst)
	}
	return nil
}

// FeedLimiter returns nil when feed fetches are not throttled.
func (c Config) FeedLimiter() *rate.Limiter {
	if c.FeedRatePerSecond == 0 {
		return nil
	}
	burst := max(c.FeedBurst, 1)
	return rate.NewLimiter(rate.Limit(c.FeedRatePerSecond), burst)
}
