package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "tanpa keterangan", cfg.Unloading.DefaultPauseReason)
	assert.Equal(t, 12*time.Hour, cfg.Unloading.StalePauseAfter)
}

func TestLoad_OverridesAndLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unloadtrack.yaml")
	data := `
plant_id: bp-jkt
messaging:
  backend: kafka
  kafka:
    brokers: ["k1:9092"]
layout:
  units:
    BP-2: [silo-5, silo-6]
    BP-1: [silo-1, silo-2, silo-3, silo-4]
  buffer_silos: [bs-1]
  buffer_tanks: [tank-7]
unloading:
  stale_pause_after: 2h
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bp-jkt", cfg.PlantID)
	assert.Equal(t, "kafka", cfg.Messaging.Backend)
	assert.Equal(t, []string{"k1:9092"}, cfg.Messaging.Kafka.Brokers)
	assert.Equal(t, []string{"BP-1", "BP-2"}, cfg.Layout.UnitNames())
	assert.Equal(t, 2*time.Hour, cfg.Unloading.StalePauseAfter)
	// untouched keys keep their defaults
	assert.Equal(t, "plant/arrivals", cfg.Messaging.ArrivalsTopic)
}

func TestLoad_RejectsDuplicateSilo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.yaml")
	data := `
layout:
  units:
    BP-1: [silo-1]
    BP-2: [silo-1]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_DestinationIDsUniqueAcrossBanks(t *testing.T) {
	cases := map[string]string{
		"unit and buffer tank": `
layout:
  units:
    BP-1: [silo-1]
  buffer_tanks: [silo-1]
`,
		"unit and buffer silo": `
layout:
  units:
    BP-1: [silo-1]
  buffer_silos: [silo-1]
`,
		"buffer silo and buffer tank": `
layout:
  buffer_silos: [bs-1]
  buffer_tanks: [bs-1]
`,
		"repeated buffer tank": `
layout:
  buffer_tanks: [bt-1, bt-1]
`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "layout.yaml")
			require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "listed under both")
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("UNLOADTRACK_DB_PATH", "/tmp/x.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Database.SQLite.Path)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.PlantID = "bp-sby"
	cfg.Layout.BufferTanks = []string{"tank-7"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bp-sby", got.PlantID)
	assert.Equal(t, []string{"tank-7"}, got.Layout.BufferTanks)
}
