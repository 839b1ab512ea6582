package domain

import (
	"fmt"
	"math"
	"time"
)

// Session duration bucket labels, in ascending order.
const (
	Bucket0To10s   = "0-10s"
	Bucket10To30s  = "10-30s"
	Bucket30sTo1m  = "30s-1min"
	Bucket1To5m    = "1-5min"
	Bucket5mPlus   = "5min+"
	UnknownElement = "unknown"
	RootPath       = "/"
)

// DistributionBuckets lists the bucket labels in display order.
var DistributionBuckets = []string{Bucket0To10s, Bucket10To30s, Bucket30sTo1m, Bucket1To5m, Bucket5mPlus}

// PageCount is one entry of Metrics.TopPages.
type PageCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// SourceCount is one entry of a ranked traffic source list.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Metrics is the dashboard summary computed from all sessions and events.
type Metrics struct {
	TotalSessions       int                `json:"totalSessions"`
	TotalPageViews      int                `json:"totalPageViews"`
	AvgSessionDuration  float64            `json:"avgSessionDuration"`
	SessionDistribution map[string]int     `json:"sessionDistribution"`
	ButtonClicks        map[string]int     `json:"buttonClicks"`
	TopPages            []PageCount        `json:"topPages"`
	AvgScrollDepth      float64            `json:"avgScrollDepth"`
	DeviceBreakdown     map[DeviceType]int `json:"deviceBreakdown"`
	TrafficSources      map[string]int     `json:"trafficSources"`
}

// Dashboard is the metrics document served to operators.
type Dashboard struct {
	Metrics
	TopTrafficSources []SourceCount `json:"topTrafficSources"`
	GeneratedAt       time.Time     `json:"generatedAt"`
}

// FormatDuration renders seconds the way the dashboard shows them:
// under a minute as "Ns", under an hour as "Nm", otherwise "Nh", rounded.
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", int(math.Round(seconds)))
	case seconds < 3600:
		return fmt.Sprintf("%dm", int(math.Round(seconds/60)))
	default:
		return fmt.Sprintf("%dh", int(math.Round(seconds/3600)))
	}
}
