// Package commands_test provides tests for CLI command creation.
package commands

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/distill-labs/distillprep/internal/cli/config"
)

// withTempProject runs the test from an empty temporary directory so
// commands resolve their paths against it instead of the repo.
func withTempProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	config.ResetConfig()
	t.Cleanup(func() {
		_ = os.Chdir(orig)
		config.ResetConfig()
	})
	return dir
}

func TestNewMappingCommand(t *testing.T) {
	cmd := NewMappingCommand()

	assert.Equal(t, "mapping", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")

	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, want := range []string{"generate", "validate", "show"} {
		assert.True(t, subs[want], "subcommand %q should exist", want)
	}
}

func TestNewMappingGenerateCommandFlags(t *testing.T) {
	cmd := newMappingGenerateCommand()

	assert.Equal(t, "generate", cmd.Name())
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"output", "boundaries", "force"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewCorpusCommand(t *testing.T) {
	cmd := NewCorpusCommand()

	assert.Equal(t, "corpus", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")

	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, want := range []string{"fetch", "list", "runs"} {
		assert.True(t, subs[want], "subcommand %q should exist", want)
	}
}

func TestNewTokenizeCommand(t *testing.T) {
	cmd := NewTokenizeCommand()

	assert.Equal(t, "tokenize <corpus>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"workers", "limit", "probe"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewDoctorCommand(t *testing.T) {
	cmd := NewDoctorCommand()

	assert.Equal(t, "doctor", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
}

func TestParseBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int
		wantErr bool
	}{
		{name: "simple", input: "0,2,4", want: []int{0, 2, 4}},
		{name: "with spaces", input: "0, 2, 4", want: []int{0, 2, 4}},
		{name: "single", input: "7", want: []int{7}},
		{name: "not a number", input: "0,two,4", wantErr: true},
		{name: "empty element", input: "0,,4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBoundaries(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
