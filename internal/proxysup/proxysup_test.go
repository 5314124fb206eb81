package proxysup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obscurnet/nativebridge/internal/netrt"
)

func TestLoadSettingsDefaultsWhenMissing(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, "socks5://127.0.0.1:9050", settings.ProxyURL)
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tor_settings.json")
	s := New(netrt.New(), "true", nil)

	require.NoError(t, s.SaveSettings(path, true, "socks5://127.0.0.1:9150"))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.True(t, loaded.Enabled)
	assert.Equal(t, "socks5://127.0.0.1:9150", loaded.ProxyURL)
	assert.True(t, s.rt.Enabled())
}

func TestStartStopLifecycleWithRealChildProcess(t *testing.T) {
	s := New(netrt.New(), "sh", []string{"-c", "echo Bootstrapped 100% done; sleep 5"})
	require.NoError(t, s.Start())

	select {
	case status := <-s.StatusEvents():
		assert.Equal(t, "starting", status.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("expected starting status")
	}

	foundConnected := false
	for i := 0; i < 5 && !foundConnected; i++ {
		select {
		case status := <-s.StatusEvents():
			if status.Status == "connected" {
				foundConnected = true
			}
		case <-time.After(2 * time.Second):
		}
	}
	assert.True(t, foundConnected)
	assert.Equal(t, "running", s.Status())

	require.NoError(t, s.Stop())
	assert.Equal(t, "stopped", s.Status())
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	s := New(netrt.New(), "true", nil)
	assert.NoError(t, s.Stop())
}
