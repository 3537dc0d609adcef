package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oht50/firmware/internal/fsutil"
)

func TestStore_LoadNetworkWritesDefaultsWhenAbsent(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := NewStore(fs, "/etc/oht50")

	cfg, err := store.LoadNetwork()
	require.NoError(t, err)
	assert.Equal(t, DefaultNetworkFileConfig(), cfg)
	assert.True(t, fs.Exists("/etc/oht50/network.conf"))
}

func TestStore_SaveLoadNetworkRoundTrip(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := NewStore(fs, "/etc/oht50")

	cfg := NetworkFileConfig{
		WifiEnabled:      true,
		WifiSSID:         "plant-ap",
		WifiPassword:     "supersecret1",
		WifiSecurityType: 3,
		SignalStrength:   -55,
		RoamingEnabled:   true,
		MobileAppEnabled: false,
		LastUpdateTimeS:  1700000000,
	}
	require.NoError(t, store.SaveNetwork(cfg))

	got, err := store.LoadNetwork()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestStore_SaveRoamingRejectsInvalidThreshold(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := NewStore(fs, "/etc/oht50")

	cfg := DefaultRoamingFileConfig()
	cfg.SignalThresholdDBm = -10

	err := store.SaveRoaming(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestStore_LoadIgnoresUnknownKeys(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := NewStore(fs, "/etc/oht50")

	raw := "# a comment\nwifi_enabled=true\nwifi_ssid=plant-ap\nfuture_key=123\n"
	require.NoError(t, fs.WriteFile("/etc/oht50/network.conf", []byte(raw), 0644))

	cfg, err := store.LoadNetwork()
	require.NoError(t, err)
	assert.True(t, cfg.WifiEnabled)
	assert.Equal(t, "plant-ap", cfg.WifiSSID)
}

func TestStore_LoadRejectsMalformedLine(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := NewStore(fs, "/etc/oht50")

	raw := "wifi_enabled true\n"
	require.NoError(t, fs.WriteFile("/etc/oht50/network.conf", []byte(raw), 0644))

	_, err := store.LoadNetwork()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigParse))
}

func TestStore_BackupAndRestoreNetwork(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := NewStore(fs, "/etc/oht50")

	original := DefaultNetworkFileConfig()
	original.WifiSSID = "plant-ap"
	original.WifiPassword = "supersecret1"
	require.NoError(t, store.SaveNetwork(original))
	require.NoError(t, store.BackupNetwork())

	mutated := original
	mutated.WifiSSID = "different-ap"
	require.NoError(t, store.SaveNetwork(mutated))

	restored, err := store.RestoreNetwork()
	require.NoError(t, err)
	assert.Equal(t, original, restored)

	reloaded, err := store.LoadNetwork()
	require.NoError(t, err)
	assert.Equal(t, original, reloaded)
}

func TestStore_PathCannotEscapeConfigDir(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := NewStore(fs, "/etc/oht50/../../etc")

	_, err := store.LoadNetwork()
	// The resulting path is still within its own (escaped) safe dir
	// relative to itself, so this asserts the checkPath call runs
	// without panicking; a literal traversal attempt is exercised next.
	_ = err

	store2 := NewStore(fs, "/etc/oht50")
	escaped := store2.networkPath() + "/../../../etc/passwd"
	if err := store2.checkPath(escaped); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestRoamingFileConfig_ToRoamingConfig(t *testing.T) {
	cfg := RoamingFileConfig{
		Enabled:            true,
		SignalThresholdDBm: -65,
		ScanIntervalMS:     4000,
		HandoverTimeoutMS:  1500,
		AggressiveRoaming:  true,
	}
	rc := cfg.ToRoamingConfig()
	require.NoError(t, rc.Validate())
	assert.Equal(t, -65, rc.SignalThresholdDBm)
	assert.True(t, rc.AggressiveRoaming)
}
