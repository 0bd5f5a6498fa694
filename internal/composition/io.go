package composition

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ReadScript reads a composition from a YAML file.
func ReadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse composition %s: %w", path, err)
	}
	script.Dir = filepath.Dir(path)
	return &script, nil
}

// WriteScript writes a composition to a YAML file.
func WriteScript(script *Script, path string) error {
	data, err := yaml.Marshal(script)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CameraTrack is an external camera keyframe file.
type CameraTrack struct {
	Keyframes []Keyframe `yaml:"keyframes"`
}

// ReadCameraTrack reads keyframes with absolute times from a YAML file.
func ReadCameraTrack(path string) ([]Keyframe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var track CameraTrack
	if err := yaml.Unmarshal(data, &track); err != nil {
		return nil, fmt.Errorf("parse camera track %s: %w", path, err)
	}
	return track.Keyframes, nil
}

// WriteCameraTrack writes keyframes to a YAML file.
func WriteCameraTrack(keyframes []Keyframe, path string) error {
	data, err := yaml.Marshal(CameraTrack{Keyframes: keyframes})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
