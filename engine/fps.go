// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

// Number of samples kept by the renderer's FPSHistory.
const fpsHistoryLen = 100

// FPSHistory is a fixed ring of frame rate samples.
type FPSHistory struct {
	vals []float64
	next int
	n    int
}

// NewFPSHistory creates an empty history of n samples.
func NewFPSHistory(n int) *FPSHistory {
	return &FPSHistory{vals: make([]float64, max(n, 1))}
}

// Push adds a sample, evicting the oldest one if the
// history is full.
func (h *FPSHistory) Push(fps float64) {
	h.vals[h.next] = fps
	h.next = (h.next + 1) % len(h.vals)
	h.n = min(h.n+1, len(h.vals))
}

// Values returns the samples from oldest to newest.
func (h *FPSHistory) Values() []float64 {
	s := make([]float64, 0, h.n)
	for i := range h.n {
		s = append(s, h.vals[(h.next-h.n+i+len(h.vals))%len(h.vals)])
	}
	return s
}

// Current returns the newest sample, or zero if there
// is none.
func (h *FPSHistory) Current() float64 {
	if h.n == 0 {
		return 0
	}
	return h.vals[(h.next-1+len(h.vals))%len(h.vals)]
}

// Average returns the mean of the samples, or zero if
// there is none.
func (h *FPSHistory) Average() float64 {
	if h.n == 0 {
		return 0
	}
	var sum float64
	for _, v := range h.Values() {
		sum += v
	}
	return sum / float64(h.n)
}

// Len returns the number of samples.
func (h *FPSHistory) Len() int { return h.n }
