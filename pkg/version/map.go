package version

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

var (
	ErrMapFrozen       = errors.New("version map is frozen")
	ErrUnknownUmbrella = errors.New("unknown umbrella version")
)

// Map translates an umbrella version (a release of the application) into
// the version each type is serialized at. Umbrella versions start at 1 and
// are only ever appended, so payloads written by older releases stay
// decodable.
//
// A Map is built by a single goroutine and then frozen; after Freeze it is
// safe for concurrent readers.
type Map struct {
	entries []map[string]Version
	frozen  bool
}

// NewMap returns a map holding umbrella version 1 with no explicit type
// versions.
func NewMap() *Map {
	return &Map{entries: []map[string]Version{{}}}
}

// NewVersion appends a new umbrella version and returns it.
func (m *Map) NewVersion() (Version, error) {
	if m.frozen {
		return 0, ErrMapFrozen
	}
	if len(m.entries) >= int(Max) {
		return 0, fmt.Errorf("umbrella version overflow")
	}
	m.entries = append(m.entries, map[string]Version{})
	return m.Latest(), nil
}

// Set records the version of typeName in the latest umbrella version.
func (m *Map) Set(typeName string, v Version) error {
	if m.frozen {
		return ErrMapFrozen
	}
	if v == Unversioned {
		return fmt.Errorf("type %q: version %d is reserved", typeName, v)
	}
	m.entries[len(m.entries)-1][typeName] = v
	return nil
}

// Freeze forbids further mutation.
func (m *Map) Freeze() { m.frozen = true }

// Latest returns the newest umbrella version.
func (m *Map) Latest() Version { return Version(len(m.entries)) }

// Has reports whether umbrella is known to the map.
func (m *Map) Has(umbrella Version) bool {
	return umbrella >= Initial && int(umbrella) <= len(m.entries)
}

// VersionFor returns the version of typeName at the given umbrella version:
// the value set by the newest entry at or before umbrella, or Initial when
// none mentions the type. Umbrella versions past Latest resolve like Latest.
func (m *Map) VersionFor(umbrella Version, typeName string) Version {
	i := min(int(umbrella), len(m.entries))
	for ; i > 0; i-- {
		if v, ok := m.entries[i-1][typeName]; ok {
			return v
		}
	}
	return Initial
}

// At returns a Selector resolving every type at the given umbrella version.
func (m *Map) At(umbrella Version) (Selector, error) {
	if !m.Has(umbrella) {
		return nil, fmt.Errorf("%w: %d (latest is %d)", ErrUnknownUmbrella, umbrella, m.Latest())
	}
	return umbrellaSelector{m: m, umbrella: umbrella}, nil
}

// Types lists every type name mentioned by any entry, sorted.
func (m *Map) Types() []string {
	seen := make(map[string]struct{})
	for _, e := range m.entries {
		for name := range e {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type umbrellaSelector struct {
	m        *Map
	umbrella Version
}

func (s umbrellaSelector) VersionOf(typeName string) Version {
	return s.m.VersionFor(s.umbrella, typeName)
}

// MapConfig is the file representation of a Map. Each element of Versions
// is one umbrella version, in order.
type MapConfig struct {
	Versions []MapEntry `json:"versions" yaml:"versions"`
}

type MapEntry struct {
	Umbrella Version            `json:"umbrella,omitempty" yaml:"umbrella,omitempty"`
	Types    map[string]Version `json:"types" yaml:"types"`
}

// Build turns the configuration into a frozen Map.
func (c *MapConfig) Build() (*Map, error) {
	m := NewMap()
	for i, entry := range c.Versions {
		if i > 0 {
			if _, err := m.NewVersion(); err != nil {
				return nil, err
			}
		}
		if entry.Umbrella != 0 && entry.Umbrella != m.Latest() {
			return nil, fmt.Errorf("entry %d declares umbrella %d, expected %d", i, entry.Umbrella, m.Latest())
		}
		for name, v := range entry.Types {
			if err := m.Set(name, v); err != nil {
				return nil, err
			}
		}
	}
	m.Freeze()
	return m, nil
}

// LoadYAML loads a frozen Map from YAML.
func LoadYAML(r io.Reader) (*Map, error) {
	var c MapConfig
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode version map: %w", err)
	}
	return c.Build()
}

// LoadJSON loads a frozen Map from JSON.
func LoadJSON(r io.Reader) (*Map, error) {
	var c MapConfig
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode version map: %w", err)
	}
	return c.Build()
}

// Config returns the file representation of m.
func (m *Map) Config() MapConfig {
	c := MapConfig{Versions: make([]MapEntry, len(m.entries))}
	for i, e := range m.entries {
		types := make(map[string]Version, len(e))
		for k, v := range e {
			types[k] = v
		}
		c.Versions[i] = MapEntry{Umbrella: Version(i + 1), Types: types}
	}
	return c
}
