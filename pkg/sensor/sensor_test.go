package sensor

import (
	"context"
	"math"
	"testing"
	"time"
)

// scriptedSampler returns the queued results in order.
type scriptedSampler struct {
	results []sampleResult
	calls   int
}

type sampleResult struct {
	width time.Duration
	err   error
	// hang waits for the sample context to end, like a sensor that never
	// raises its echo line.
	hang bool
}

func (s *scriptedSampler) Sample(ctx context.Context) (time.Duration, error) {
	if s.calls >= len(s.results) {
		return 0, ErrNoEcho
	}
	r := s.results[s.calls]
	s.calls++
	if r.hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return r.width, r.err
}

// widthFor returns the echo pulse width that corresponds to cm.
func widthFor(cm float64) time.Duration {
	return time.Duration(cm / cmPerMicrosecond * float64(time.Microsecond))
}

func newTestAcquirer(s Sampler, n int) *Acquirer {
	a := NewAcquirer(s, Options{Samples: n, SampleTimeout: time.Second})
	a.sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"single", []float64{42}, 42},
		{"odd", []float64{30, 10, 20}, 20},
		{"even", []float64{10, 40, 20, 30}, 25},
		{"pair", []float64{44, 46}, 45},
		{"duplicates", []float64{5, 5, 9}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Median(tt.values); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Median(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestMedianOrderInvariant(t *testing.T) {
	perms := [][]float64{
		{46.2, 45.9, 80.0},
		{80.0, 46.2, 45.9},
		{45.9, 80.0, 46.2},
	}
	want := Median(perms[0])
	for _, p := range perms {
		if got := Median(p); got != want {
			t.Fatalf("Median(%v) = %v, want %v", p, got, want)
		}
	}
	if want != 46.2 {
		t.Fatalf("outlier leaked into median: %v", want)
	}
}

func TestMedianDoesNotMutate(t *testing.T) {
	in := []float64{3, 1, 2}
	Median(in)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Fatalf("input was modified: %v", in)
	}
}

func TestMeasure(t *testing.T) {
	tests := []struct {
		name    string
		results []sampleResult
		want    Measurement
	}{
		{
			name: "all valid",
			results: []sampleResult{
				{width: widthFor(46)}, {width: widthFor(47)}, {width: widthFor(45)},
			},
			want: Measurement{Distance: 46, Valid: true},
		},
		{
			name: "one timeout",
			results: []sampleResult{
				{width: widthFor(44)}, {err: ErrNoEcho}, {width: widthFor(46)},
			},
			want: Measurement{Distance: 45, Valid: true},
		},
		{
			name: "single valid",
			results: []sampleResult{
				{err: ErrNoEcho}, {err: ErrNoEcho}, {width: widthFor(30)},
			},
			want: Measurement{Distance: 30, Valid: true},
		},
		{
			name: "no valid",
			results: []sampleResult{
				{err: ErrNoEcho}, {err: context.DeadlineExceeded}, {err: ErrNoEcho},
			},
			want: NoReading,
		},
		{
			name: "out of range discarded",
			results: []sampleResult{
				{width: widthFor(900)}, {width: widthFor(50)}, {err: ErrNoEcho},
			},
			want: Measurement{Distance: 50, Valid: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedSampler{results: tt.results}
			got := newTestAcquirer(s, 3).Measure(context.Background())
			if got.Valid != tt.want.Valid {
				t.Fatalf("Valid = %v, want %v", got.Valid, tt.want.Valid)
			}
			if math.Abs(got.Distance-tt.want.Distance) > 0.01 {
				t.Fatalf("Distance = %v, want %v", got.Distance, tt.want.Distance)
			}
			if s.calls != 3 {
				t.Fatalf("expected 3 samples, got %d", s.calls)
			}
		})
	}
}

func TestMeasureSampleTimeout(t *testing.T) {
	s := &scriptedSampler{results: []sampleResult{
		{hang: true}, {width: widthFor(50)}, {width: widthFor(52)},
	}}
	a := NewAcquirer(s, Options{Samples: 3, SampleTimeout: 20 * time.Millisecond})
	a.sleep = func(context.Context, time.Duration) error { return nil }

	start := time.Now()
	got := a.Measure(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Measure took %v, want the hung sample cut at 20ms", elapsed)
	}
	if !got.Valid || math.Abs(got.Distance-51) > 0.01 {
		t.Fatalf("got %+v, want median of the two echoes", got)
	}
	if s.calls != 3 {
		t.Fatalf("expected 3 samples, got %d", s.calls)
	}
}

func TestMeasureAllSamplesTimeOut(t *testing.T) {
	s := &scriptedSampler{results: []sampleResult{{hang: true}, {hang: true}}}
	a := NewAcquirer(s, Options{Samples: 2, SampleTimeout: 10 * time.Millisecond})
	a.sleep = func(context.Context, time.Duration) error { return nil }

	if got := a.Measure(context.Background()); got.Valid {
		t.Fatalf("expected no reading, got %+v", got)
	}
}

func TestEchoToDistance(t *testing.T) {
	// 2915µs round trip is about 50cm.
	got := EchoToDistance(2915 * time.Microsecond)
	if math.Abs(got-49.99) > 0.01 {
		t.Fatalf("EchoToDistance = %v", got)
	}
}
