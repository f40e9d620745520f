package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapVersionFor(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Set("A", 1))

	v2, err := m.NewVersion()
	require.NoError(t, err)
	require.Equal(t, Version(2), v2)
	require.NoError(t, m.Set("A", 2))
	require.NoError(t, m.Set("B", 2))

	_, err = m.NewVersion()
	require.NoError(t, err)
	require.NoError(t, m.Set("B", 3))

	assert.Equal(t, Version(3), m.Latest())

	assert.Equal(t, Version(1), m.VersionFor(1, "A"))
	assert.Equal(t, Version(2), m.VersionFor(2, "A"))
	assert.Equal(t, Version(2), m.VersionFor(3, "A"), "inherits from the previous umbrella")
	assert.Equal(t, Initial, m.VersionFor(1, "B"), "defaults to the initial version")
	assert.Equal(t, Version(3), m.VersionFor(3, "B"))
	assert.Equal(t, Initial, m.VersionFor(3, "C"))
	assert.Equal(t, Version(3), m.VersionFor(42, "B"), "future umbrellas resolve like the latest")

	assert.Equal(t, []string{"A", "B"}, m.Types())
}

func TestMapSelector(t *testing.T) {
	m := NewMap()
	_, _ = m.NewVersion()
	require.NoError(t, m.Set("A", 4))

	sel, err := m.At(2)
	require.NoError(t, err)
	assert.Equal(t, Version(4), sel.VersionOf("A"))
	assert.Equal(t, Initial, sel.VersionOf("Z"))

	_, err = m.At(3)
	require.ErrorIs(t, err, ErrUnknownUmbrella)
	_, err = m.At(0)
	require.ErrorIs(t, err, ErrUnknownUmbrella)
}

func TestMapFreeze(t *testing.T) {
	m := NewMap()
	m.Freeze()
	require.ErrorIs(t, m.Set("A", 2), ErrMapFrozen)
	_, err := m.NewVersion()
	require.ErrorIs(t, err, ErrMapFrozen)
	assert.Equal(t, Version(1), m.Latest(), "a frozen map keeps its history")
}

func TestMapRejectsReservedVersion(t *testing.T) {
	require.Error(t, NewMap().Set("A", Unversioned))
}

func TestLoadYAML(t *testing.T) {
	const doc = `
versions:
  - types:
      Device: 1
  - umbrella: 2
    types:
      Device: 2
      State: 1
  - types:
      State: 3
`
	m, err := LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, Version(3), m.Latest())
	assert.Equal(t, Version(2), m.VersionFor(3, "Device"))
	assert.Equal(t, Version(3), m.VersionFor(3, "State"))
	require.ErrorIs(t, m.Set("X", 1), ErrMapFrozen)

	cfg := m.Config()
	require.Len(t, cfg.Versions, 3)
	assert.Equal(t, Version(2), cfg.Versions[1].Umbrella)
}

func TestLoadYAMLRejectsMisnumberedUmbrella(t *testing.T) {
	const doc = `
versions:
  - types: {A: 1}
  - umbrella: 5
    types: {A: 2}
`
	_, err := LoadYAML(strings.NewReader(doc))
	require.Error(t, err)
}

func TestLoadJSON(t *testing.T) {
	m, err := LoadJSON(strings.NewReader(`{"versions":[{"types":{"A":1}},{"types":{"A":3}}]}`))
	require.NoError(t, err)
	assert.Equal(t, Version(3), m.VersionFor(2, "A"))
}

func TestFixedSelector(t *testing.T) {
	var s Selector = Fixed(7)
	assert.Equal(t, Version(7), s.VersionOf("anything"))
}
