package spacing

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
)

var t0 = time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newEngine() *Engine {
	return NewEngine(Config{}, zap.NewNop())
}

// seed records n samples in ctx with the given retention.
func seed(e *Engine, user string, ctx Snapshot, retention float64, n int) {
	for i := 0; i < n; i++ {
		e.Record(user, ctx, retention, t0.Add(time.Duration(i)*time.Minute))
	}
}

func TestNoHistoryIsIdentity(t *testing.T) {
	e := newEngine()
	ctx := Snapshot{Location: "library"}
	if got := e.AdjustInterval("u1", 12, ctx); got != 12 {
		t.Errorf("AdjustInterval = %f, want 12", got)
	}
}

func TestBelowMinSamplesIsIdentity(t *testing.T) {
	e := newEngine()
	seed(e, "u1", Snapshot{Location: "library"}, 1, 9)
	if got := e.Multiplier("u1", Snapshot{Location: "library"}); got != 1 {
		t.Errorf("Multiplier with 9 samples = %f, want 1", got)
	}
	seed(e, "u1", Snapshot{Location: "library"}, 1, 1)
	if got := e.Multiplier("u1", Snapshot{Location: "library"}); !near(got, 1.2) {
		t.Errorf("Multiplier with 10 samples = %f, want 1.2", got)
	}
}

func TestThresholds(t *testing.T) {
	e := newEngine()
	seed(e, "u1", Snapshot{Location: "library"}, 0.9, 10)
	seed(e, "u1", Snapshot{Location: "bus"}, 0.5, 10)
	seed(e, "u1", Snapshot{Location: "cafe"}, 0.7, 10)

	cases := map[string]float64{"library": 1.2, "bus": 0.8, "cafe": 1, "office": 1}
	for loc, want := range cases {
		if got := e.Multiplier("u1", Snapshot{Location: loc}); !near(got, want) {
			t.Errorf("%s: Multiplier = %f, want %f", loc, got, want)
		}
	}
}

func TestExactThresholdsLeaveIntervalUnchanged(t *testing.T) {
	e := newEngine()
	// 8/10 and 6/10 recalled: means sit exactly on the thresholds.
	seed(e, "u1", Snapshot{Device: "phone"}, 1, 8)
	seed(e, "u1", Snapshot{Device: "phone"}, 0, 2)
	seed(e, "u1", Snapshot{Device: "tablet"}, 1, 6)
	seed(e, "u1", Snapshot{Device: "tablet"}, 0, 4)
	for _, dev := range []string{"phone", "tablet"} {
		if got := e.Multiplier("u1", Snapshot{Device: dev}); got != 1 {
			t.Errorf("%s: Multiplier = %f, want 1", dev, got)
		}
	}
}

func TestDimensionsCompound(t *testing.T) {
	e := newEngine()
	good := Snapshot{Location: "library", TimeOfDay: "morning", Device: "laptop"}
	seed(e, "u1", good, 1, 12)
	if got := e.AdjustInterval("u1", 10, good); !near(got, 10*1.2*1.2*1.2) {
		t.Errorf("AdjustInterval = %f, want %f", got, 10*1.2*1.2*1.2)
	}

	mixed := Snapshot{Location: "library", TimeOfDay: "night"}
	if got := e.Multiplier("u1", mixed); !near(got, 1.2) {
		t.Errorf("unseen value should not contribute, got %f", got)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	e := newEngine()
	seed(e, "u1", Snapshot{Location: "library"}, 1, 10)
	if got := e.Multiplier("u2", Snapshot{Location: "library"}); got != 1 {
		t.Errorf("u2 Multiplier = %f, want 1", got)
	}
}

func TestRollingWindow(t *testing.T) {
	e := NewEngine(Config{MinSamples: 10, Window: 10}, zap.NewNop())
	seed(e, "u1", Snapshot{Location: "desk"}, 0, 10)
	seed(e, "u1", Snapshot{Location: "desk"}, 1, 10)
	if n := e.SampleCount("u1"); n != 10 {
		t.Fatalf("SampleCount = %d, want 10", n)
	}
	if got := e.Correlations("u1")[Location]["desk"]; got != 1 {
		t.Errorf("mean after window roll = %f, want 1", got)
	}
}

func TestRebuildAll(t *testing.T) {
	e := newEngine()
	seed(e, "u1", Snapshot{Location: "desk"}, 1, 10)
	seed(e, "u2", Snapshot{Location: "desk"}, 1, 3)
	if n := e.RebuildAll(); n != 2 {
		t.Errorf("first RebuildAll = %d, want 2", n)
	}
	if n := e.RebuildAll(); n != 0 {
		t.Errorf("second RebuildAll = %d, want 0", n)
	}
}

func TestRecordIgnoresEmptyContext(t *testing.T) {
	e := newEngine()
	e.Record("u1", Snapshot{}, 1, t0)
	if n := e.SampleCount("u1"); n != 0 {
		t.Errorf("SampleCount = %d, want 0", n)
	}
}

func TestParseSnapshot(t *testing.T) {
	s := ParseSnapshot(map[string]any{
		"location":    " Library ",
		"time_of_day": 14.0,
		"device":      "Laptop",
		"energy":      0.7,
		"stress":      "0.2",
		"weather":     "rain",
	})
	if s.Location != "library" || s.Device != "laptop" || s.TimeOfDay != "afternoon" {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if s.Energy == nil || *s.Energy != 0.7 || s.Stress == nil || *s.Stress != 0.2 {
		t.Errorf("numeric dimensions not parsed: %+v", s)
	}

	if !ParseSnapshot(map[string]any{"weather": "rain", "location": 3}).IsZero() {
		t.Error("unknown keys and mistyped values should be ignored")
	}
}

func TestBucketHour(t *testing.T) {
	cases := map[int]string{0: "night", 5: "morning", 11: "morning", 12: "afternoon", 17: "evening", 22: "night", -1: "night", 30: "morning"}
	for h, want := range cases {
		if got := BucketHour(h); got != want {
			t.Errorf("BucketHour(%d) = %q, want %q", h, got, want)
		}
	}
}
