//go:build !windows

package runner

import (
	"context"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	r := NewStepRunner(Options{})

	result, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err 1>&2; exit 3"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
	assert.False(t, result.TimedOut)
}

func TestRunSucceedsWithZeroExit(t *testing.T) {
	r := NewStepRunner(Options{})

	result, err := r.Run(context.Background(), []string{"true"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestRunEmptyCommandFails(t *testing.T) {
	r := NewStepRunner(Options{})
	_, err := r.Run(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	r := NewStepRunner(Options{})

	start := time.Now()
	result, err := r.Run(context.Background(), []string{"sleep", "30"}, 200*time.Millisecond)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, result.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// A hung step often has children of its own. Killing only the shell would
// leave the grandchild sleep running; the process group kill must take it
// down too.
func TestRunTimeoutKillsGrandchildren(t *testing.T) {
	r := NewStepRunner(Options{})

	result, err := r.Run(context.Background(),
		[]string{"sh", "-c", "sleep 60 & echo $!; sleep 60"},
		300*time.Millisecond)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, result.TimedOut)

	pidText := strings.TrimSpace(result.Stdout)
	require.NotEmpty(t, pidText, "shell should have printed the grandchild pid before the kill")
	pid, convErr := strconv.Atoi(pidText)
	require.NoError(t, convErr)

	// Signal 0 probes for existence. The grandchild was killed with the
	// group, so the probe must fail.
	assert.Eventually(t, func() bool {
		return syscall.Kill(pid, 0) != nil
	}, 2*time.Second, 50*time.Millisecond, "grandchild pid %d survived the group kill", pid)
}

func TestRunCancelledContextKillsProcess(t *testing.T) {
	r := NewStepRunner(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, []string{"sleep", "30"}, time.Minute)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
