package tracker

import (
	"math"
	"sort"

	"github.com/jonboulle/clockwork"
)

// ScrollThresholds are the depth percentages reported once per page view.
var ScrollThresholds = []int{25, 50, 75, 100}

// ScrollPosition is a raw scroll sample in CSS pixels.
type ScrollPosition struct {
	ScrollY        float64
	DocumentHeight float64
	ViewportHeight float64
}

// ScrollPercent returns how far down the scrollable range the viewport is,
// rounded to a whole percent. A page that does not overflow is at 0.
func ScrollPercent(scrollY, documentHeight, viewportHeight float64) int {
	scrollable := documentHeight - viewportHeight
	if scrollable <= 0 {
		return 0
	}
	return int(math.Round(scrollY / scrollable * 100))
}

// ScrollState is the per-page scroll bookkeeping: which thresholds were
// already reported, the pending debounce timer and the page generation the
// timer belongs to. Callers hold the tracker lock.
type ScrollState struct {
	consumed   map[int]struct{}
	timer      clockwork.Timer
	generation uint64
	ticket     uint64
	latest     ScrollPosition
}

func newScrollState() ScrollState {
	return ScrollState{consumed: make(map[int]struct{})}
}

// reset starts a new page: forget consumed thresholds and drop any pending
// evaluation.
func (s *ScrollState) reset() {
	s.cancel()
	s.consumed = make(map[int]struct{})
	s.generation++
}

func (s *ScrollState) cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// reach marks every threshold at or below percent and returns the newly
// reached ones in ascending order.
func (s *ScrollState) reach(percent int) []int {
	var reached []int
	for _, threshold := range ScrollThresholds {
		if percent < threshold {
			break
		}
		if _, done := s.consumed[threshold]; done {
			continue
		}
		s.consumed[threshold] = struct{}{}
		reached = append(reached, threshold)
	}
	return reached
}

// Consumed returns the reported thresholds in ascending order.
func (s *ScrollState) Consumed() []int {
	out := make([]int, 0, len(s.consumed))
	for t := range s.consumed {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}
