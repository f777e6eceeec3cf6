package cli

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tmsnav/internal/testutil"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	testutil.MuteLogs(t)
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func flagDefaults(fs *pflag.FlagSet) map[string]string {
	got := map[string]string{}
	fs.VisitAll(func(f *pflag.Flag) { got[f.Name] = f.DefValue })
	return got
}

func find(t *testing.T, path ...string) *cobra.Command {
	t.Helper()
	sub, _, err := NewRootCommand().Find(path)
	require.NoError(t, err)
	return sub
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "tmsnav", cmd.Use)

	for _, name := range []string{"serve", "plan", "grid", "fre", "replay", "ctl", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	want := map[string]string{"verbose": "false", "format": "text"}
	if diff := cmp.Diff(want, flagDefaults(NewRootCommand().PersistentFlags())); diff != "" {
		t.Errorf("persistent flags mismatch (-want +got):\n%s", diff)
	}
}

func merge(ms ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, m := range ms {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func TestCommandFlags(t *testing.T) {
	scene := map[string]string{"head-center": "0,0,0", "head-radius": "80", "cortex-depth": "15"}
	planning := map[string]string{
		"landmarks": "", "landmarks-file": "", "planning": "", "policy": "", "plan-on-brain": "false",
	}

	tests := []struct {
		path []string
		want map[string]string
	}{
		{[]string{"serve"}, merge(scene, map[string]string{
			"listen":   ":8080",
			"network":  "config/network.json",
			"commands": "config/commands.json",
			"planning": "config/planning.defaults.json",
		})},
		{[]string{"plan"}, merge(scene, planning, map[string]string{"commands": ""})},
		{[]string{"grid"}, merge(scene, planning, map[string]string{"count": "0", "spacing": "0", "plot": ""})},
		{[]string{"fre"}, merge(scene, map[string]string{
			"digitized": "", "result": "", "planned": "", "planned-file": "",
			"surface": "false", "max-rms": "0",
		})},
		{[]string{"replay"}, merge(scene, map[string]string{
			"pcap": "", "port": "0", "speed": "0", "landmarks": "", "landmarks-file": "", "chart": "",
		})},
		{[]string{"ctl", "robot", "jog"}, map[string]string{"value": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.path[len(tt.path)-1], func(t *testing.T) {
			got := flagDefaults(find(t, tt.path...).LocalNonPersistentFlags())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("flags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "version", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tmsnav dev (unknown, built unknown)\n", out)

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"dev","git_sha":"unknown","build_time":"unknown"}`, out)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	err := WrapExitError(ExitCommandError, "failed to load", assert.AnError)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "failed to load: "+assert.AnError.Error(), err.Error())
}
