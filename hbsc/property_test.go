package hbsc_test

import (
	"testing"

	"codeberg.org/mutker/hbsc/hbsc"
	"codeberg.org/mutker/hbsc/heartbeat"
	"pgregory.net/rapid"
)

func TestHeartbeatProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		variant := rapid.SampledFrom(heartbeat.Kinds).Draw(t, "variant")
		capacity := rapid.Uint64Range(1, 32).Draw(t, "capacity")
		calls := rapid.IntRange(0, 100).Draw(t, "calls")
		steps := rapid.SliceOfN(rapid.Uint64Range(0, 1_000_000), calls, calls).Draw(t, "steps")
		increments := rapid.SliceOfN(rapid.Uint64Range(0, 50_000), calls, calls).Draw(t, "increments")

		var now, energyNow uint64 = 1, 0
		clock := hbsc.ClockFunc(func() uint64 { return now })
		readings := make([]uint64, 0, calls)
		for _, inc := range increments {
			energyNow += inc
			readings = append(readings, energyNow)
		}

		alloc := &countingAllocator{}
		agg := &recordingAggregator{}
		meter := &fakeMeter{readings: readings}

		s, err := hbsc.Open(variant, capacity,
			hbsc.WithAllocator(alloc),
			hbsc.WithAggregator(agg.factory()),
			hbsc.WithClock(clock),
			hbsc.WithMeterFactory(meter.factory()),
		)
		if err != nil {
			t.Fatalf("open: %v", err)
		}

		for i := 0; i < calls; i++ {
			now += steps[i]
			if err := beat(s, uint64(i), 1, 1); err != nil {
				t.Fatalf("heartbeat %d: %v", i, err)
			}
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}

		want := calls - 1
		if calls == 0 {
			want = 0
		}
		if len(agg.measured) != want {
			t.Fatalf("got %d measurements for %d calls", len(agg.measured), calls)
		}
		if alloc.outstanding() != 0 {
			t.Fatalf("%d windows leaked", alloc.outstanding())
		}

		for i, m := range agg.measured {
			if m.EndTime < m.StartTime {
				t.Fatalf("measurement %d ends before it starts", i)
			}
			if i > 0 && agg.measured[i-1].EndTime != m.StartTime {
				t.Fatalf("measurement %d does not start at the previous end", i)
			}
			if m.Tag != uint64(i+1) {
				t.Fatalf("measurement %d has tag %d", i, m.Tag)
			}
			if !variant.TracksEnergy() {
				continue
			}
			if m.EndEnergy-m.StartEnergy != increments[i+1] {
				t.Fatalf("measurement %d energy delta %d, want %d", i, m.EndEnergy-m.StartEnergy, increments[i+1])
			}
		}

		if variant.TracksEnergy() && meter.finishes != 1 {
			t.Fatalf("meter finished %d times", meter.finishes)
		}
	})
}
