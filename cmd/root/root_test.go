package root

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvoland/vidchat/pkg/config"
	"github.com/vvoland/vidchat/pkg/environment"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

// execute runs the root command. It installs the default logger, so
// tests using it do not run in parallel.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := Execute(t.Context(), strings.NewReader(""), &stdout, &stderr, args...)
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)

	assert.Contains(t, stdout, "vidchat version ")
	assert.Contains(t, stdout, "Commit: ")
}

func TestUnknownCommandShowsUsage(t *testing.T) {
	stdout, stderr, err := execute(t, "frobnicate")
	require.Error(t, err)

	assert.Contains(t, stderr, `unknown command "frobnicate"`)
	assert.Contains(t, stderr, "Usage:")
	assert.NotContains(t, stdout, "Usage:")
}

func TestMissingEnvironmentIsListed(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	err := processErr(t.Context(), &environment.RequiredEnvError{Missing: []string{"TWELVELABS_API_KEY", "XAI_API_KEY"}}, &stderr, NewRootCmd())
	require.Error(t, err)

	assert.Contains(t, stderr.String(), " - TWELVELABS_API_KEY\n - XAI_API_KEY\n")
	assert.NotContains(t, stderr.String(), "Usage:")
}

func TestRuntimeErrorsAreNotRepeated(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	err := processErr(t.Context(), RuntimeError{Err: errors.New("listener closed")}, &stderr, NewRootCmd())

	require.EqualError(t, err, "listener closed")
	assert.Empty(t, stderr.String())
}

func TestConfigFlagMustExist(t *testing.T) {
	_, _, err := execute(t, "videos", "list", "IDX1", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "reading config file")
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	cmd := newServeCmd(&rootFlags{})
	require.NoError(t, cmd.ParseFlags([]string{"--listen", "unix:///tmp/vidchat.sock", "--no-narration"}))

	cfg := config.Default()
	cfg.MaxSteps = 8

	flags := serveFlags{listenAddr: "unix:///tmp/vidchat.sock", maxSteps: config.DefaultMaxSteps, noNarration: true}
	flags.apply(cmd, cfg)

	assert.Equal(t, "unix:///tmp/vidchat.sock", cfg.Listen)
	assert.Equal(t, 8, cfg.MaxSteps, "unset flags keep the configured value")
	assert.Equal(t, config.DefaultTurnTimeout, cfg.TurnTimeout)
	assert.False(t, cfg.NarrationEnforced())
}

func TestRequireEnvDeduplicates(t *testing.T) {
	t.Parallel()

	env, err := environment.NewDefaultProvider(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	_, err = requireEnv(t.Context(), env, "VIDCHAT_TEST_UNSET_B", "", "VIDCHAT_TEST_UNSET_A", "VIDCHAT_TEST_UNSET_B")

	envErr, ok := errors.AsType[*environment.RequiredEnvError](err)
	require.True(t, ok)
	assert.Equal(t, []string{"VIDCHAT_TEST_UNSET_A", "VIDCHAT_TEST_UNSET_B"}, envErr.Missing)
}

func TestFormatVideoAndIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "v1", formatVideo(twelvelabs.Video{ID: "v1"}))
	assert.Equal(t, "v1  drive.mp4  61.5s", formatVideo(twelvelabs.Video{
		ID:             "v1",
		CreatedAt:      time.Now(),
		SystemMetadata: &twelvelabs.SystemMetadata{Filename: "drive.mp4", Duration: 61.5},
	}))
	assert.Equal(t, "IDX1  dashcams  3 video(s)", formatIndex(twelvelabs.Index{ID: "IDX1", Name: "dashcams", VideoCount: 3}))
}
