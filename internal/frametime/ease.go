package frametime

import (
	"math"
	"strings"
)

// EaseFunc maps progress in [0,1] onto eased progress in [0,1].
type EaseFunc func(t float64) float64

var easings = map[string]EaseFunc{
	"linear":         Identity,
	"easeinquad":     func(t float64) float64 { return t * t },
	"easeoutquad":    func(t float64) float64 { return 1 - (1-t)*(1-t) },
	"easeinoutquad":  easeInOutQuad,
	"easeincubic":    func(t float64) float64 { return t * t * t },
	"easeoutcubic":   func(t float64) float64 { return 1 - pow(1-t, 3) },
	"easeinoutcubic": EaseInOutCubic,
	"easeinsine":     func(t float64) float64 { return 1 - math.Cos(t*math.Pi/2) },
	"easeoutsine":    func(t float64) float64 { return math.Sin(t * math.Pi / 2) },
	"easeinoutsine":  func(t float64) float64 { return -(math.Cos(math.Pi*t) - 1) / 2 },
}

// Identity is the linear ease.
func Identity(t float64) float64 { return t }

// EaseInOutCubic is the default camera ease.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

func easeInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - pow(-2*t+2, 2)/2
}

// Ease resolves a named curve. Names are case-insensitive and may use
// dashes or underscores ("ease-in-out-cubic").
func Ease(name string) (EaseFunc, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	fn, ok := easings[key]
	if !ok {
		return nil, false
	}
	return clamped(fn), true
}

// EaseOrIdentity resolves name, falling back to the identity curve so an
// unknown ease never fails a frame.
func EaseOrIdentity(name string) EaseFunc {
	if fn, ok := Ease(name); ok {
		return fn
	}
	return Identity
}

// Lerp interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamped(fn EaseFunc) EaseFunc {
	return func(t float64) float64 {
		return fn(clamp01(t))
	}
}

func clamp01(t float64) float64 {
	switch {
	case math.IsNaN(t), t < 0:
		return 0
	case t > 1:
		return 1
	}
	return t
}

func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
