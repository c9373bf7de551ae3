package timeline

import (
	"math"
	"testing"
)

func TestStoreClampsValues(t *testing.T) {
	testCases := []struct {
		phase, duty         float64
		wantPhase, wantDuty float64
	}{
		{0, 0, 0, 0},
		{90, 50, 90, 50},
		{360, 100, 0, 100},
		{370, 150, 10, 100},
		{-90, -5, 270, 0},
		{-720, 12.5, 0, 12.5},
		{math.NaN(), math.NaN(), 0, 0},
		{math.Inf(1), math.Inf(1), 0, 100},
	}

	var s Store
	for _, tc := range testCases {
		if err := s.Set(3, tc.phase, tc.duty); err != nil {
			t.Fatalf("Set(%v, %v) returned error: %v", tc.phase, tc.duty, err)
		}
		got, _ := s.Get(3)
		if got.Phase != tc.wantPhase || got.Duty != tc.wantDuty {
			t.Errorf("Set(%v, %v): expected (%v, %v), got (%v, %v)",
				tc.phase, tc.duty, tc.wantPhase, tc.wantDuty, got.Phase, got.Duty)
		}
	}
}

func TestStoreRejectsInvalidChannel(t *testing.T) {
	var s Store
	if err := s.Set(0, 45, 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := s.Snapshot()

	for _, ch := range []int{-1, NumChannels, 255} {
		if err := s.Set(ch, 10, 10); err != ErrInvalidChannel {
			t.Errorf("Set(channel=%d): expected ErrInvalidChannel, got %v", ch, err)
		}
		if _, err := s.Get(ch); err != ErrInvalidChannel {
			t.Errorf("Get(channel=%d): expected ErrInvalidChannel, got %v", ch, err)
		}
	}

	if s.Snapshot() != before {
		t.Errorf("invalid channel mutated the store")
	}
}

func TestStoreReset(t *testing.T) {
	var s Store
	for ch := 0; ch < NumChannels; ch++ {
		s.Set(ch, float64(ch*36), 50)
	}
	s.Reset()
	if s.Snapshot() != ([NumChannels]ChannelConfig{}) {
		t.Errorf("Reset left channels configured: %v", s.Snapshot())
	}
}
