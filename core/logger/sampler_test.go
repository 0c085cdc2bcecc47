package logger

import (
	"sync"
	"testing"
)

func TestRatioSamplerAllow(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	want := []bool{true, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Allow #%d = %v, want %v", i, got[i], want[i])
		}
	}

	s.Set(0, 0)
	for i := 0; i < 5; i++ {
		if !s.Allow() {
			t.Fatal("disabled sampler must allow everything")
		}
	}
}

func TestRatioSamplerConcurrent(t *testing.T) {
	s := newRatioSampler(2, 10)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 0
			for i := 0; i < 125; i++ {
				if s.Allow() {
					n++
				}
			}
			mu.Lock()
			allowed += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	if allowed != 200 {
		t.Fatalf("allowed %d of 1000, want 200", allowed)
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := []struct {
		in       string
		num, den int
	}{
		{"1/50", 1, 50},
		{" 2 / 10 ", 2, 10},
		{"20", 1, 20},
		{"5%", 5, 100},
		{"0%", 0, 0},
		{"0", 0, 0},
		{"", 0, 0},
		{"nope", 0, 0},
	}
	for _, tc := range cases {
		num, den := parseRatioSpec(tc.in)
		if num != tc.num || den != tc.den {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", tc.in, num, den, tc.num, tc.den)
		}
	}
}
