package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Data:   DataConfig{BasePath: "/some/path"},
	}

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidEnvironment(t *testing.T) {
	cfg := &Config{
		App:    AppConfig{Environment: "sandbox"},
		Logger: LoggerConfig{Level: "info"},
		Data:   DataConfig{BasePath: "/some/path"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid environment")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := &Config{
		App:    AppConfig{Environment: "production"},
		Logger: LoggerConfig{Level: "verbose"},
		Data:   DataConfig{BasePath: "/some/path"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestValidate_MissingDataPath(t *testing.T) {
	cfg := &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "debug"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data base path")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name        string
		path        string
		defaultPath string
		want        string
	}{
		{"empty uses default", "", "/fallback", "/fallback"},
		{"tilde expands", "~/tangle", "", filepath.Join(home, "tangle")},
		{"absolute unchanged", "/var/lib/tangle", "", "/var/lib/tangle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.path, tt.defaultPath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")

	content := "# comment line\nTANGLE_TEST_KEY=from-file\n\nTANGLE_TEST_QUOTED=\"quoted value\"\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	t.Cleanup(func() {
		os.Unsetenv("TANGLE_TEST_KEY")
		os.Unsetenv("TANGLE_TEST_QUOTED")
	})

	require.NoError(t, loadEnvFile(envPath))

	assert.Equal(t, "from-file", os.Getenv("TANGLE_TEST_KEY"))
	assert.Equal(t, "quoted value", os.Getenv("TANGLE_TEST_QUOTED"))
}

func TestLoadEnvFile_DoesNotOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")

	require.NoError(t, os.WriteFile(envPath, []byte("TANGLE_TEST_EXISTING=file\n"), 0o600))

	t.Setenv("TANGLE_TEST_EXISTING", "process")

	require.NoError(t, loadEnvFile(envPath))
	assert.Equal(t, "process", os.Getenv("TANGLE_TEST_EXISTING"))
}
