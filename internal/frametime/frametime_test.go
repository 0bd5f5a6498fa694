package frametime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToElapsedIsFrameOverFPS(t *testing.T) {
	for _, fps := range []int{24, 25, 30, 60} {
		for frame := 0; frame < 500; frame++ {
			want := float64(frame) / float64(fps)
			if got := ToElapsed(frame, fps, 0, Seconds); got != want {
				t.Fatalf("ToElapsed(%d, %d) = %v, want %v", frame, fps, got, want)
			}
		}
	}
}

func TestToElapsedMilliseconds(t *testing.T) {
	assert.InDelta(t, 1000.0, ToElapsed(30, 30, 0, Milliseconds), 1e-9)
	assert.InDelta(t, 500.0, ToElapsed(45, 30, 30, Milliseconds), 1e-9)
	assert.Equal(t, 0.0, ToElapsed(10, 30, 20, Milliseconds), "frames before start clamp to zero")
	assert.Equal(t, 0.0, ToElapsed(10, 0, 0, Milliseconds))
}

func TestToElapsedMonotonic(t *testing.T) {
	prev := -1.0
	for frame := 0; frame < 1000; frame++ {
		got := ToElapsed(frame, 29, 0, Milliseconds)
		if got < prev {
			t.Fatalf("elapsed decreased at frame %d", frame)
		}
		prev = got
	}
}

func TestCueStartFrame(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name  string
		start *float64
		fps   int
		want  int
		ok    bool
	}{
		{"half seconds", f(2.5), 30, 75, true},
		{"zero", f(0), 30, 0, true},
		{"rounds", f(1.01), 30, 30, true},
		{"missing", nil, 30, 0, false},
		{"nan", f(math.NaN()), 30, 0, false},
		{"inf", f(math.Inf(1)), 30, 0, false},
		{"negative", f(-1), 30, 0, false},
		{"no fps", f(2), 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CueStartFrameChecked(tt.start, tt.fps)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, CueStartFrame(tt.start, tt.fps))
		})
	}
}

func TestFrameAt(t *testing.T) {
	assert.Equal(t, 3, FrameAt(0.1, 30))
	assert.Equal(t, 75, FrameAt(2.5, 30))
	assert.Equal(t, 0, FrameAt(math.NaN(), 30))
	assert.Equal(t, 0, FrameAt(-2, 30))
}
