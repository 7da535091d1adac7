package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratio lets through the first num events of every den. A zero ratio
// lets everything through.
type ratio struct {
	num, den uint64
}

type ratioSampler struct {
	cfg  atomic.Pointer[ratio]
	seen atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts counting.
func (s *ratioSampler) Set(num, den int) {
	r := &ratio{}
	if num > 0 && den > 0 {
		r.num, r.den = uint64(min(num, den)), uint64(den)
	}
	s.cfg.Store(r)
	s.seen.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.cfg.Load()
	if r == nil || r.den == 0 {
		return true
	}
	return (s.seen.Add(1)-1)%r.den < r.num
}

// parseRatioSpec accepts "n/d" or a bare "d" meaning 1/d. Anything
// unparsable or non-positive yields 0/0.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if a, b, ok := strings.Cut(spec, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(a))
		den, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 == nil && err2 == nil {
			return num, den
		}
		return 0, 0
	}
	den, err := strconv.Atoi(spec)
	if err != nil || den <= 0 {
		return 0, 0
	}
	return 1, den
}
