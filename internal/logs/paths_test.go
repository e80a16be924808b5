package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogDir(t *testing.T) {
	logDir, err := GetLogDir()
	require.NoError(t, err)

	assert.Contains(t, logDir, "loginfront")
	assert.True(t, filepath.IsAbs(logDir))
}

func TestGetWindowsLogDir(t *testing.T) {
	t.Run("with LOCALAPPDATA", func(t *testing.T) {
		testPath := filepath.Join("C:", "Users", "testuser", "AppData", "Local")
		t.Setenv("LOCALAPPDATA", testPath)

		logDir, err := getWindowsLogDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(testPath, "loginfront", "logs"), logDir)
	})

	t.Run("with USERPROFILE fallback", func(t *testing.T) {
		t.Setenv("LOCALAPPDATA", "")
		profile := filepath.Join("C:", "Users", "testuser")
		t.Setenv("USERPROFILE", profile)

		logDir, err := getWindowsLogDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(profile, "AppData", "Local", "loginfront", "logs"), logDir)
	})

	t.Run("fallback to default", func(t *testing.T) {
		t.Setenv("LOCALAPPDATA", "")
		t.Setenv("USERPROFILE", "")

		logDir, err := getWindowsLogDir()
		require.NoError(t, err)
		assert.Contains(t, logDir, "loginfront")
	})
}

func TestGetMacOSLogDir(t *testing.T) {
	logDir, err := getMacOSLogDir()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(logDir, filepath.Join("Library", "Logs", "loginfront")))
}

func TestGetLinuxLogDir(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root always logs to /var/log")
	}

	t.Run("with XDG_STATE_HOME", func(t *testing.T) {
		t.Setenv("XDG_STATE_HOME", "/tmp/test-xdg-state")

		logDir, err := getLinuxLogDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/tmp/test-xdg-state", "loginfront", "logs"), logDir)
	})

	t.Run("without XDG_STATE_HOME", func(t *testing.T) {
		t.Setenv("XDG_STATE_HOME", "")

		logDir, err := getLinuxLogDir()
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(logDir, filepath.Join(".local", "state", "loginfront", "logs")))
	})
}

func TestEnsureLogDir(t *testing.T) {
	testLogDir := filepath.Join(t.TempDir(), "test", "logs")

	require.NoError(t, EnsureLogDir(testLogDir))

	info, err := os.Stat(testLogDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	if runtime.GOOS != osWindows {
		assert.Zero(t, info.Mode().Perm()&0o007, "log dir must not be world accessible")
	}
}

func TestGetLogFilePathWithDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom")

	path, err := GetLogFilePathWithDir(dir, "main.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "main.log"), path)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGetLogFilePathWithHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	path, err := GetLogFilePathWithDir("~/lf-logs", "main.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "lf-logs", "main.log"), path)
}
