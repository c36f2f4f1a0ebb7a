package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(old)
		ResetConfig()
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultCacheDir), cfg.CacheDir)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, DefaultMappingPath), cfg.MappingPath)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, 13, cfg.Geometry.TeacherLayers)
	assert.Equal(t, 9, cfg.Geometry.StudentLayers)
	assert.Equal(t, 12, cfg.Geometry.Heads)
	assert.Equal(t, 64, cfg.Geometry.HeadDim)
	assert.Empty(t, GetConfigFileUsed())
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
cache_dir: corpora
verbose: true
geometry:
  teacher_layers: 12
  student_layers: 6
  heads: 8
  head_dim: 32
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "distillprep.yaml"), []byte(content), 0644))
	chdir(t, dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "corpora"), cfg.CacheDir)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 6, cfg.Geometry.StudentLayers)
	assert.Equal(t, "distillprep.yaml", filepath.Base(GetConfigFileUsed()))
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state_path: manifest.db\n"), 0644))
	chdir(t, t.TempDir())

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	// Paths resolve against the config file's directory.
	assert.Equal(t, filepath.Join(dir, "manifest.db"), cfg.StatePath)
	assert.Equal(t, dir, cfg.ProjectRoot)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "distillprep.yaml"), []byte("cache_dir: from-file\n"), 0644))
	chdir(t, dir)
	t.Setenv("DISTILLPREP_CACHE_DIR", "from-env")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "from-env"), cfg.CacheDir)
}

func TestLoadConfig_EnvNestedKey(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DISTILLPREP_GEOMETRY__HEADS", "16")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Geometry.Heads)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("DISTILLPREP_CACHE_DIR", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("cache-dir", "", "")
	flags.String("state", "", "")
	require.NoError(t, flags.Parse([]string{"--cache-dir", "from-flag", "--state", "flag.db"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "from-flag"), cfg.CacheDir)
	assert.Equal(t, filepath.Join(dir, "flag.db"), cfg.StatePath, "--state maps to state_path")
}

func TestLoadConfig_UnchangedFlagsIgnored(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("cache-dir", "flag-default", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultCacheDir), cfg.CacheDir)
}

func TestLoadConfig_InvalidGeometry(t *testing.T) {
	dir := t.TempDir()
	content := "geometry:\n  teacher_layers: 2\n  student_layers: 6\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "distillprep.yaml"), []byte(content), 0644))
	chdir(t, dir)

	_, err := LoadConfig("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geometry")
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := LoadConfig("does-not-exist.yaml", nil)
	require.Error(t, err)
}

func TestFindProjectRoot_Upward(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "distillprep.yaml"), []byte("verbose: true\n"), 0644))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0750))
	chdir(t, nested)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.True(t, cfg.Verbose, "config found by upward search")
	assert.Equal(t, filepath.Join(root, DefaultCacheDir), cfg.CacheDir)
}
