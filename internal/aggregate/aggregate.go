// Package aggregate reduces stored sessions and events to dashboard metrics.
package aggregate

import (
	"sort"

	"github.com/jonesrussell/north-cloud/visitor-analytics/internal/domain"
)

// TopPagesLimit is how many pages Metrics.TopPages keeps.
const TopPagesLimit = 5

// Bucket upper bounds in seconds, inclusive.
const (
	bucket0To10sMax  = 10
	bucket10To30sMax = 30
	bucket30sTo1mMax = 60
	bucket1To5mMax   = 300
)

// Aggregate computes metrics over all sessions and events. It does not
// modify its inputs and returns the same result for the same input in any
// order. Missing optional fields fall back to their sentinels.
func Aggregate(sessions []domain.Session, events []domain.Event) domain.Metrics {
	m := domain.Metrics{
		TotalSessions:       len(sessions),
		SessionDistribution: make(map[string]int, len(domain.DistributionBuckets)),
		ButtonClicks:        make(map[string]int),
		TopPages:            []domain.PageCount{},
		DeviceBreakdown: map[domain.DeviceType]int{
			domain.DeviceDesktop: 0,
			domain.DeviceTablet:  0,
			domain.DeviceMobile:  0,
		},
		TrafficSources: make(map[string]int),
	}
	for _, b := range domain.DistributionBuckets {
		m.SessionDistribution[b] = 0
	}

	var durationSum, completed int
	for i := range sessions {
		s := &sessions[i]
		if s.Completed() {
			completed++
			durationSum += *s.DurationSeconds
			m.SessionDistribution[bucketFor(*s.DurationSeconds)]++
		}
		if s.DeviceType.Valid() {
			m.DeviceBreakdown[s.DeviceType]++
		}
		source := s.Referrer
		if source == "" {
			source = domain.ReferrerDirect
		}
		m.TrafficSources[source]++
	}
	if completed > 0 {
		m.AvgSessionDuration = float64(durationSum) / float64(completed)
	}

	pages := make(map[string]int)
	var scrollSum, scrollEvents int
	for i := range events {
		e := &events[i]
		switch e.EventType {
		case domain.EventPageView:
			m.TotalPageViews++
			path := e.PagePath
			if path == "" {
				path = domain.RootPath
			}
			pages[path]++
		case domain.EventButtonClick:
			id := e.ElementID
			if id == "" {
				id = domain.UnknownElement
			}
			m.ButtonClicks[id]++
		case domain.EventScrollDepth:
			scrollEvents++
			if e.ScrollDepth != nil {
				scrollSum += *e.ScrollDepth
			}
		}
	}
	if scrollEvents > 0 {
		m.AvgScrollDepth = float64(scrollSum) / float64(scrollEvents)
	}
	m.TopPages = topPages(pages, TopPagesLimit)

	return m
}

func bucketFor(seconds int) string {
	switch {
	case seconds <= bucket0To10sMax:
		return domain.Bucket0To10s
	case seconds <= bucket10To30sMax:
		return domain.Bucket10To30s
	case seconds <= bucket30sTo1mMax:
		return domain.Bucket30sTo1m
	case seconds <= bucket1To5mMax:
		return domain.Bucket1To5m
	default:
		return domain.Bucket5mPlus
	}
}

// topPages ranks by count descending, then path ascending.
func topPages(counts map[string]int, n int) []domain.PageCount {
	out := make([]domain.PageCount, 0, len(counts))
	for path, c := range counts {
		out = append(out, domain.PageCount{Path: path, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TopTrafficSources ranks m.TrafficSources by count descending, then source
// ascending, keeping at most n.
func TopTrafficSources(m domain.Metrics, n int) []domain.SourceCount {
	out := make([]domain.SourceCount, 0, len(m.TrafficSources))
	for source, c := range m.TrafficSources {
		out = append(out, domain.SourceCount{Source: source, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Source < out[j].Source
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
