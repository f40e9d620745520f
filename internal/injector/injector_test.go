package injector

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/versionize/internal/config"
	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/schema"
	"github.com/zeusync/versionize/internal/core/schema/registry"
	"github.com/zeusync/versionize/internal/core/snapshot"
	"github.com/zeusync/versionize/pkg/encoding"
	"github.com/zeusync/versionize/pkg/version"
)

type order struct {
	ID    uint64
	Total int64 `versionize:"since=2,optional"`
}

func newRegistry() *registry.Registry {
	return registry.New().MustRegister(schema.Struct[order]("order").MustBuild())
}

func TestInitializeApp(t *testing.T) {
	cfg := &config.Config{
		Format:      encoding.FormatCBOR,
		Compression: snapshot.CompressionZstd,
		Checksum:    true,
		Digest:      snapshot.DigestBlake3,
		LogLevel:    log.LevelSilent,
		Workers:     2,
	}
	reg := newRegistry()
	app, err := InitializeApp(cfg, reg)
	require.NoError(t, err)

	assert.True(t, reg.Frozen())
	assert.Nil(t, app.Versions)
	assert.Same(t, cfg, app.Config)

	var buf bytes.Buffer
	h, err := app.Snapshots.Save(&buf, order{ID: 1, Total: 99})
	require.NoError(t, err)
	assert.Equal(t, encoding.FormatCBOR, h.Codec)
	assert.Equal(t, snapshot.CompressionZstd, h.Compression)
	assert.Equal(t, snapshot.ModeFixed, h.Mode)
	assert.Equal(t, snapshot.DigestBlake3, h.Digest)

	var out order
	_, err = app.Snapshots.Load(&buf, &out)
	require.NoError(t, err)
	assert.Equal(t, order{ID: 1, Total: 99}, out)

	m, err := app.Checker.CheckType(context.Background(), order{ID: 1})
	require.NoError(t, err)
	assert.True(t, m.Compatible())
}

func TestInitializeAppWithVersionMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
versions:
  - types: {order: 1}
  - types: {order: 2}
`), 0o600))

	cfg := &config.Config{Format: encoding.FormatBinary, LogLevel: log.LevelSilent, VersionMap: path}
	app, err := InitializeApp(cfg, newRegistry())
	require.NoError(t, err)
	require.NotNil(t, app.Versions)

	var buf bytes.Buffer
	h, err := app.Snapshots.Save(&buf, order{ID: 5, Total: 7})
	require.NoError(t, err)
	assert.Equal(t, snapshot.ModeUmbrella, h.Mode)
	assert.Equal(t, version.Version(2), h.Version, "defaults to the latest umbrella")

	cfg.Umbrella = 1
	app, err = InitializeApp(cfg, newRegistry())
	require.NoError(t, err)
	var out order
	_, err = app.Snapshots.Load(&buf, &out)
	require.NoError(t, err)
	assert.Equal(t, order{ID: 5}, out)

	cfg.Umbrella = 3
	_, err = InitializeApp(cfg, newRegistry())
	require.ErrorIs(t, err, version.ErrUnknownUmbrella)
}

func TestInitializeAppMissingMap(t *testing.T) {
	cfg := &config.Config{LogLevel: log.LevelSilent, VersionMap: filepath.Join(t.TempDir(), "nope.yaml")}
	_, err := InitializeApp(cfg, newRegistry())
	require.Error(t, err)
}
