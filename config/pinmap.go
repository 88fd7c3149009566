package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Playlist is one line's clips. In YAML it is either a single clip name
// or a sequence of names.
type Playlist []string

func (p *Playlist) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var clip string
		if err := node.Decode(&clip); err != nil {
			return err
		}
		*p = Playlist{clip}
		return nil
	case yaml.SequenceNode:
		var clips []string
		if err := node.Decode(&clips); err != nil {
			return err
		}
		*p = clips
		return nil
	default:
		return fmt.Errorf("line %d: playlist must be a clip name or a list of clip names", node.Line)
	}
}

// PinMap maps BCM pin numbers to playlists.
type PinMap map[int]Playlist

type pinFile struct {
	Pins PinMap `yaml:"pins"`
}

// DefaultPinMap is the stock doorbell wiring.
func DefaultPinMap() PinMap {
	return PinMap{
		22: {"Conni geht zelten.wav"},
		23: {"doorbell-6.wav", "boilingwater.wav"},
		17: {"boilingwater.wav"},
		27: {"Wellerman.wav"},
	}
}

// Pins returns the mapped pins in ascending order.
func (m PinMap) Pins() []int {
	pins := make([]int, 0, len(m))
	for pin := range m {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// Equal reports whether both maps hold the same clips in the same order.
func (m PinMap) Equal(other PinMap) bool {
	if len(m) != len(other) {
		return false
	}
	for pin, clips := range m {
		o, ok := other[pin]
		if !ok || len(o) != len(clips) {
			return false
		}
		for i := range clips {
			if clips[i] != o[i] {
				return false
			}
		}
	}
	return true
}

func (m PinMap) Validate() error {
	if len(m) == 0 {
		return errors.New("pin map has no pins")
	}
	for _, pin := range m.Pins() {
		if pin < 0 || pin > 53 {
			return fmt.Errorf("pin %d: out of range", pin)
		}
		clips := m[pin]
		if len(clips) == 0 {
			return fmt.Errorf("pin %d: empty playlist", pin)
		}
		for i, clip := range clips {
			if strings.TrimSpace(clip) == "" {
				return fmt.Errorf("pin %d: clip %d has no name", pin, i)
			}
		}
	}
	return nil
}

// ParsePinMap decodes a pin map document. Unknown keys are rejected.
func ParsePinMap(data []byte) (PinMap, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f pinFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("pin map is empty")
		}
		return nil, fmt.Errorf("failed to parse pin map: %w", err)
	}
	if err := f.Pins.Validate(); err != nil {
		return nil, err
	}
	return f.Pins, nil
}

func LoadPinMap(path string) (PinMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParsePinMap(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
