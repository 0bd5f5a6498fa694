package composition

import (
	"fmt"
	"path/filepath"
)

// Script is an authored composition: frame grid hints, a backdrop source and
// an ordered list of narrative cues.
type Script struct {
	Version     string     `yaml:"version"`
	Title       string     `yaml:"title,omitempty"`
	FPS         int        `yaml:"fps,omitempty"`
	Width       int        `yaml:"width,omitempty"`
	Height      int        `yaml:"height,omitempty"`
	DurationSec float64    `yaml:"durationSec,omitempty"`
	Background  string     `yaml:"background,omitempty"`  // hex color, e.g. "#101018"
	Source      string     `yaml:"source,omitempty"`      // PDF file or image folder
	CameraTrack string     `yaml:"cameraTrack,omitempty"` // YAML keyframe file, absolute times
	Audio       string     `yaml:"audio,omitempty"`       // prepared soundtrack, skips narration
	Music       *MusicSpec `yaml:"music,omitempty"`
	Cues        []Cue      `yaml:"cues"`

	// Dir is the directory the script was read from; relative paths resolve
	// against it.
	Dir string `yaml:"-"`
}

// Cue is one narrative beat of the composition.
type Cue struct {
	ID          string     `yaml:"id,omitempty"`
	StartSec    *float64   `yaml:"startSec,omitempty"`
	DurationSec float64    `yaml:"durationSec,omitempty"`
	Page        int        `yaml:"page"`
	Narration   string     `yaml:"narration,omitempty"`
	SFX         *SFXSpec   `yaml:"sfx,omitempty"`
	Camera      []Keyframe `yaml:"camera,omitempty"` // times relative to the cue start
	Highlight   *Highlight `yaml:"highlight,omitempty"`
	QR          *QRSpec    `yaml:"qr,omitempty"`
}

// Keyframe is a camera position at a point in time.
type Keyframe struct {
	Time  float64   `yaml:"time"`
	Focus string    `yaml:"focus,omitempty"`
	Rect  Rectangle `yaml:"rect"`
	Zoom  float64   `yaml:"zoom"`
	Ease  string    `yaml:"ease,omitempty"` // curve used to reach this keyframe
}

// Rectangle is a box in viewport pixels.
type Rectangle struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// Highlight pulses a translucent box over part of the frame.
type Highlight struct {
	Rect     Rectangle `yaml:"rect"`
	Color    string    `yaml:"color,omitempty"`
	CycleSec float64   `yaml:"cycleSec,omitempty"`
	Ease     string    `yaml:"ease,omitempty"`
	From     float64   `yaml:"from"`
	To       float64   `yaml:"to"`
}

// QRSpec places a QR code in a corner of the frame.
type QRSpec struct {
	Content string `yaml:"content"`
	Size    int    `yaml:"size,omitempty"`
	Corner  string `yaml:"corner,omitempty"` // top-left, top-right, bottom-left, bottom-right
	Margin  int    `yaml:"margin,omitempty"`
}

// SFXSpec asks for a sound effect at the start of a cue.
type SFXSpec struct {
	Prompt      string  `yaml:"prompt"`
	DurationSec float64 `yaml:"durationSec,omitempty"`
}

// MusicSpec asks for a background music bed.
type MusicSpec struct {
	Prompt      string  `yaml:"prompt"`
	DurationSec float64 `yaml:"durationSec,omitempty"`
	Seed        *int64  `yaml:"seed,omitempty"`
}

// Key identifies the cue in asset manifests and narration lookups.
func (c Cue) Key(index int) string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("cue-%d", index+1)
}

// ResolvePath resolves p against the script directory.
func (s *Script) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || s.Dir == "" {
		return p
	}
	return filepath.Join(s.Dir, p)
}
