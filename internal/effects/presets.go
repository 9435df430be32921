package effects

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// ErrUnknownPreset is returned for a preset name that is not defined.
var ErrUnknownPreset = errors.New("unknown EQ preset")

// Preset is a named set of graphic EQ band values on the 0..2 scale.
type Preset struct {
	Name   string    `yaml:"name" json:"name"`
	Values []float64 `yaml:"values" json:"values"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

var builtinPresets = mustParsePresets(presetsYAML)

// ParsePresets reads a presets document. Every preset must carry one value
// per EQ band.
func ParsePresets(data []byte) ([]Preset, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	for _, p := range f.Presets {
		if len(p.Values) != len(EQFrequencies) {
			return nil, fmt.Errorf("preset %q: %d values, want %d", p.Name, len(p.Values), len(EQFrequencies))
		}
	}
	return f.Presets, nil
}

func mustParsePresets(data []byte) []Preset {
	p, err := ParsePresets(data)
	if err != nil {
		panic(err)
	}
	return p
}

// Presets returns the built-in presets in display order.
func Presets() []Preset {
	out := make([]Preset, len(builtinPresets))
	copy(out, builtinPresets)
	return out
}

// LookupPreset finds a built-in preset by case-insensitive name.
func LookupPreset(name string) (Preset, error) {
	for _, p := range builtinPresets {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// PresetValueToDB maps the 0..2 preset scale to dB: 0 → -26, 1 → 0, 2 → +6.
func PresetValueToDB(v float64) float64 {
	v = clamp(v, 0, 2)
	if v <= 1 {
		return (v - 1) * 26
	}
	return (v - 1) * 6
}
