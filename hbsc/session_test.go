package hbsc_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"codeberg.org/mutker/hbsc/energy"
	"codeberg.org/mutker/hbsc/hbsc"
	"codeberg.org/mutker/hbsc/heartbeat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCloseAllVariants(t *testing.T) {
	for _, variant := range heartbeat.Kinds {
		t.Run(variant.String(), func(t *testing.T) {
			alloc := &countingAllocator{}
			opener := &fakeOpener{file: &fakeFile{}}
			meter := &fakeMeter{}

			s, err := hbsc.Open(variant, 10,
				hbsc.WithAllocator(alloc),
				hbsc.WithLogOpener(opener.open),
				hbsc.WithLogPath("heartbeat.log"),
				hbsc.WithMeterFactory(meter.factory()),
			)
			require.NoError(t, err)
			assert.Equal(t, variant, s.Variant())
			assert.Equal(t, uint64(10), s.WindowCapacity())

			require.NoError(t, s.Close())
			assert.Zero(t, alloc.outstanding())
			assert.Zero(t, opener.openFiles())
			assert.Equal(t, meter.inits, meter.finishes)
			if variant.TracksEnergy() {
				assert.Equal(t, 1, meter.finishes)
			} else {
				assert.Zero(t, meter.inits)
			}

			header := strings.SplitN(string(opener.file.data), "\n", 2)[0]
			assert.Equal(t, strings.Join(heartbeat.Columns(variant), "\t"), header)
		})
	}
}

func TestOpenRejectsZeroCapacity(t *testing.T) {
	alloc := &countingAllocator{}
	s, err := hbsc.Open(hbsc.Base, 0, hbsc.WithAllocator(alloc))

	assert.Nil(t, s)
	assert.Equal(t, hbsc.ErrInvalidArgument, hbsc.CodeOf(err))
	assert.Zero(t, alloc.allocs)
}

func TestOpenRejectsUnknownVariant(t *testing.T) {
	alloc := &countingAllocator{}
	_, err := hbsc.Open(hbsc.Variant(12), 4, hbsc.WithAllocator(alloc))

	assert.Equal(t, hbsc.ErrInvalidArgument, hbsc.CodeOf(err))
	assert.Zero(t, alloc.allocs)
}

func TestOpenRejectsInvalidOptions(t *testing.T) {
	options := map[string]hbsc.Option{
		"log path":   hbsc.WithLogPath(""),
		"meter":      hbsc.WithMeterFactory(nil),
		"clock":      hbsc.WithClock(nil),
		"allocator":  hbsc.WithAllocator(nil),
		"log opener": hbsc.WithLogOpener(nil),
		"aggregator": hbsc.WithAggregator(nil),
		"logger":     hbsc.WithLogger(nil),
	}

	for name, opt := range options {
		t.Run(name, func(t *testing.T) {
			_, err := hbsc.Open(hbsc.Base, 4, opt)
			assert.Equal(t, hbsc.ErrInvalidArgument, hbsc.CodeOf(err))
		})
	}
}

func TestFirstHeartbeatOnlySetsBaseline(t *testing.T) {
	agg := &recordingAggregator{}
	s, err := hbsc.Open(hbsc.Base, 4, hbsc.WithAggregator(agg.factory()), hbsc.WithClock(stepClock(1000)))
	require.NoError(t, err)

	require.NoError(t, s.Heartbeat(7, 1))
	assert.Empty(t, agg.measured)

	require.NoError(t, s.Heartbeat(8, 3))
	require.Len(t, agg.measured, 1)
	assert.Equal(t, heartbeat.Measurement{Tag: 8, Work: 3, StartTime: 1000, EndTime: 2000}, agg.measured[0])

	require.NoError(t, s.Close())
}

func TestTwentyHeartbeatsWithMockClock(t *testing.T) {
	agg := &recordingAggregator{}
	s, err := hbsc.Open(hbsc.Base, 10, hbsc.WithAggregator(agg.factory()), hbsc.WithClock(stepClock(1000)))
	require.NoError(t, err)
	assert.Equal(t, 10, agg.initWindow)
	assert.False(t, agg.initWithLog)

	for i := uint64(0); i < 20; i++ {
		require.NoError(t, s.Heartbeat(0, 1))
	}

	require.Len(t, agg.measured, 19)
	for i, m := range agg.measured {
		assert.Equal(t, uint64(i+1)*1000, m.StartTime)
		assert.Equal(t, uint64(i+2)*1000, m.EndTime)
		assert.Equal(t, uint64(1), m.Work)
	}

	require.NoError(t, s.Close())
	// nothing to flush without a log target
	assert.Zero(t, agg.flushes)
}

func TestDefaultAggregatorReceivesMeasurements(t *testing.T) {
	var windows int
	s, err := hbsc.Open(hbsc.Accuracy, 10,
		hbsc.WithClock(stepClock(1000)),
		hbsc.WithWindowCompleteHook(func(*heartbeat.Context) { windows++ }),
	)
	require.NoError(t, err)

	for i := uint64(0); i < 20; i++ {
		require.NoError(t, s.HeartbeatAccuracy(i, 1, 2))
	}

	stats, ok := s.Stats()
	require.True(t, ok)
	assert.Equal(t, uint64(19), stats.Heartbeats)
	assert.Equal(t, 1, windows)
	assert.InDelta(t, 1e6, stats.Perf.Window, 1e-6)
	assert.InDelta(t, 2e6, stats.AccuracyRate.Global, 1e-6)

	require.NoError(t, s.Close())
	_, ok = s.Aggregator().(*heartbeat.Context)
	assert.True(t, ok)
}

func TestEnergyDeltasFollowMeter(t *testing.T) {
	agg := &recordingAggregator{}
	meter := &fakeMeter{readings: []uint64{100, 250, 600, 1000}}
	s, err := hbsc.Open(hbsc.AccuracyPower, 8,
		hbsc.WithAggregator(agg.factory()),
		hbsc.WithClock(stepClock(10)),
		hbsc.WithMeterFactory(meter.factory()),
	)
	require.NoError(t, err)

	for i := uint64(0); i < 4; i++ {
		require.NoError(t, s.HeartbeatAccuracy(i, 1, 5))
	}

	require.Len(t, agg.measured, 3)
	want := [][2]uint64{{100, 250}, {250, 600}, {600, 1000}}
	for i, m := range agg.measured {
		assert.Equal(t, want[i][0], m.StartEnergy)
		assert.Equal(t, want[i][1], m.EndEnergy)
		assert.Equal(t, uint64(5), m.Accuracy)
	}

	require.NoError(t, s.Close())
	assert.Equal(t, 1, meter.finishes)
}

func TestMeterReadFailureKeepsBaseline(t *testing.T) {
	agg := &recordingAggregator{}
	meter := &fakeMeter{readings: []uint64{10, 30}, failReads: map[int]bool{1: true}}
	s, err := hbsc.Open(hbsc.Power, 4,
		hbsc.WithAggregator(agg.factory()),
		hbsc.WithClock(stepClock(1000)),
		hbsc.WithMeterFactory(meter.factory()),
	)
	require.NoError(t, err)

	require.NoError(t, s.Heartbeat(0, 1))

	err = s.Heartbeat(1, 1)
	assert.Equal(t, hbsc.ErrMeterRead, hbsc.CodeOf(err))
	assert.Empty(t, agg.measured)

	require.NoError(t, s.Heartbeat(2, 1))
	require.Len(t, agg.measured, 1)
	assert.Equal(t, heartbeat.Measurement{
		Tag: 2, Work: 1, StartTime: 1000, EndTime: 2000, StartEnergy: 10, EndEnergy: 30,
	}, agg.measured[0])

	require.NoError(t, s.Close())
}

func TestHeartbeatVariantMismatch(t *testing.T) {
	base, err := hbsc.Open(hbsc.Base, 2)
	require.NoError(t, err)
	defer base.Close()
	assert.Equal(t, hbsc.ErrInvalidArgument, hbsc.CodeOf(base.HeartbeatAccuracy(0, 1, 1)))

	acc, err := hbsc.Open(hbsc.Accuracy, 2)
	require.NoError(t, err)
	defer acc.Close()
	assert.Equal(t, hbsc.ErrInvalidArgument, hbsc.CodeOf(acc.Heartbeat(0, 1)))
}

func TestClosedAndNilSessions(t *testing.T) {
	alloc := &countingAllocator{}
	meter := &fakeMeter{readings: []uint64{1}}
	s, err := hbsc.Open(hbsc.Power, 2, hbsc.WithAllocator(alloc), hbsc.WithMeterFactory(meter.factory()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, hbsc.ErrInvalidSession, hbsc.CodeOf(s.Close()))
	assert.Equal(t, hbsc.ErrInvalidSession, hbsc.CodeOf(s.Heartbeat(0, 1)))
	assert.Equal(t, 1, alloc.frees)
	assert.Equal(t, 1, meter.finishes)
	assert.Zero(t, meter.reads)

	var nilSession *hbsc.Session
	assert.Equal(t, hbsc.ErrInvalidSession, hbsc.CodeOf(nilSession.Heartbeat(0, 1)))
	assert.Equal(t, hbsc.ErrInvalidSession, hbsc.CodeOf(nilSession.HeartbeatAccuracy(0, 1, 1)))
	assert.Equal(t, hbsc.ErrInvalidSession, hbsc.CodeOf(nilSession.Close()))
}

func TestDefaultClockIsMonotonic(t *testing.T) {
	agg := &recordingAggregator{}
	s, err := hbsc.Open(hbsc.Base, 16, hbsc.WithAggregator(agg.factory()))
	require.NoError(t, err)

	for i := uint64(0); i < 100; i++ {
		require.NoError(t, s.Heartbeat(i, 1))
	}
	require.NoError(t, s.Close())

	require.Len(t, agg.measured, 99)
	for i, m := range agg.measured {
		assert.Positive(t, m.StartTime)
		assert.GreaterOrEqual(t, m.EndTime, m.StartTime)
		if i > 0 {
			assert.Equal(t, agg.measured[i-1].EndTime, m.StartTime)
		}
	}
}

func TestLogFileOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.log")
	require.NoError(t, os.WriteFile(path, []byte("stale content\n"), 0o600))

	s, err := hbsc.Open(hbsc.Accuracy, 10, hbsc.WithLogPath(path))
	require.NoError(t, err)
	for i := uint64(0); i < 25; i++ {
		require.NoError(t, s.HeartbeatAccuracy(i, 1, 1))
	}
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 25)
	assert.True(t, strings.HasPrefix(lines[0], "HB\tTag\tWork"))
	assert.NotContains(t, string(data), "stale content")
	for i, line := range lines[1:] {
		assert.True(t, strings.HasPrefix(line, strconv.Itoa(i)+"\t"+strconv.Itoa(i+1)+"\t"), line)
	}
}

func TestNonexistentLogDirectory(t *testing.T) {
	alloc := &countingAllocator{}
	s, err := hbsc.Open(hbsc.Base, 10, hbsc.WithAllocator(alloc), hbsc.WithLogPath("/nonexistent/dir/file.log"))

	assert.Nil(t, s)
	assert.Equal(t, hbsc.ErrIO, hbsc.CodeOf(err))
	assert.Equal(t, 1, alloc.allocs)
	assert.Zero(t, alloc.outstanding())
}

func TestDefaultAllocatorRejectsHugeWindows(t *testing.T) {
	_, err := hbsc.Open(hbsc.Base, 1<<40)
	assert.Equal(t, hbsc.ErrOutOfMemory, hbsc.CodeOf(err))
}

func TestEnergyVariantRequiresMeter(t *testing.T) {
	alloc := &countingAllocator{}
	_, err := hbsc.Open(hbsc.Power, 4, hbsc.WithAllocator(alloc))

	assert.Equal(t, hbsc.ErrMeterInit, hbsc.CodeOf(err))
	assert.Zero(t, alloc.outstanding())
}

func TestPowerWithDummyMeter(t *testing.T) {
	factory, err := energy.Lookup(energy.MeterDummy)
	require.NoError(t, err)

	s, err := hbsc.Open(hbsc.AccuracyPower, 10, hbsc.WithMeterFactory(factory))
	require.NoError(t, err)
	for i := uint64(0); i < 20; i++ {
		require.NoError(t, s.HeartbeatAccuracy(i, 1, 1))
	}
	require.NoError(t, s.Close())

	stats, ok := s.Stats()
	require.True(t, ok)
	assert.Equal(t, uint64(19), stats.Heartbeats)
	assert.Zero(t, stats.Power.Global)
}

func TestOpenRejectsNilAggregator(t *testing.T) {
	alloc := &countingAllocator{}
	opener := &fakeOpener{file: &fakeFile{}}
	meter := &fakeMeter{}

	s, err := hbsc.Open(hbsc.AccuracyPower, 4,
		hbsc.WithAllocator(alloc),
		hbsc.WithLogOpener(opener.open),
		hbsc.WithLogPath("heartbeat.log"),
		hbsc.WithMeterFactory(meter.factory()),
		hbsc.WithAggregator(func(hbsc.Variant) hbsc.Aggregator { return nil }),
	)

	assert.Nil(t, s)
	assert.Equal(t, hbsc.ErrInvalidArgument, hbsc.CodeOf(err))
	assert.Zero(t, alloc.allocs)
	assert.Empty(t, opener.opened)
	assert.Zero(t, meter.inits)
}
