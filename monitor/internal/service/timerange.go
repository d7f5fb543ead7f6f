package service

import (
	"strings"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
)

const (
	// TokenCustom selects an explicit customStartDate/customEndDate window.
	TokenCustom = "custom"

	// TokenAll is the display token of an unconstrained window.
	TokenAll = "all"

	// DashboardDefault is the range used by the dashboard when none is given.
	DashboardDefault = "24h"
)

var presets = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// TimeRangeTokens lists the tokens offered by the range selector, in order.
func TimeRangeTokens() []string {
	return []string{"5m", "15m", "30m", "1h", "6h", "12h", "1d", "7d", "30d", TokenCustom}
}

// ParseTimeRange resolves a range token against now. A preset yields
// [now-d, now]. custom uses the given bounds, each optional; a bound that is
// missing or malformed leaves that side open. An absent or unknown token falls
// back to fallback, and an empty fallback means no constraint.
func ParseTimeRange(token, customStart, customEnd string, now time.Time, fallback string) models.TimeWindow {
	token = strings.TrimSpace(token)
	now = now.UTC()

	if token == TokenCustom {
		w := models.TimeWindow{Token: TokenCustom}
		if t, ok := parseBound(customStart); ok {
			w.Start = &t
		}
		if t, ok := parseBound(customEnd); ok {
			w.End = &t
		}
		return w
	}

	d, ok := presets[token]
	if !ok {
		if fallback == "" {
			return models.TimeWindow{Token: TokenAll}
		}
		token = fallback
		if d, ok = presets[fallback]; !ok {
			return models.TimeWindow{Token: TokenAll}
		}
	}

	start := now.Add(-d)
	end := now
	return models.TimeWindow{Start: &start, End: &end, Token: token}
}

func parseBound(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := events.ParseLocalDateTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
