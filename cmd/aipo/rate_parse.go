package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aipolab/aipo/internal/core"
)

// parseMaxRate parses the --max-rate flag's "N/sec" or "N/min" shape into a
// requests-per-second float the RateLimiter's token bucket consumes directly.
func parseMaxRate(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: --max-rate %q must look like \"N/sec\" or \"N/min\"", core.ErrInvalidConfiguration, s)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: --max-rate %q: %v", core.ErrInvalidConfiguration, s, err)
	}
	switch strings.TrimSpace(parts[1]) {
	case "sec", "s":
		return n, nil
	case "min", "m":
		return n / 60.0, nil
	default:
		return 0, fmt.Errorf("%w: --max-rate %q must end in /sec or /min", core.ErrInvalidConfiguration, s)
	}
}

// parseDelayRange parses the --random-delay "a-b" flag (seconds, as floats)
// into an inclusive [min,max] Duration range for stealth-mode jitter.
func parseDelayRange(s string) (time.Duration, time.Duration, error) {
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: --random-delay %q must look like \"a-b\"", core.ErrInvalidConfiguration, s)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: --random-delay %q: %v", core.ErrInvalidConfiguration, s, err)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: --random-delay %q: %v", core.ErrInvalidConfiguration, s, err)
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("%w: --random-delay %q: upper bound below lower bound", core.ErrInvalidConfiguration, s)
	}
	return time.Duration(lo * float64(time.Second)), time.Duration(hi * float64(time.Second)), nil
}
