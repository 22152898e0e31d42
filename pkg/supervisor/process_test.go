package supervisor

import (
	"bufio"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitExit(t *testing.T, p *Process) ExitStatus {
	t.Helper()
	var status ExitStatus
	require.Eventually(t, func() bool {
		var ok bool
		status, ok = p.PollExit()
		return ok
	}, 5*time.Second, 10*time.Millisecond, "process did not exit")
	return status
}

func TestSpawnMissingExecutable(t *testing.T) {
	_, err := Spawn(Options{Executable: "/nonexistent/launcher.sh"})
	require.ErrorIs(t, err, ErrSpawn)
}

func TestSpawnEmptyExecutable(t *testing.T) {
	_, err := Spawn(Options{})
	require.ErrorIs(t, err, ErrSpawn)
}

func TestSendLineRoundTrip(t *testing.T) {
	p, err := Spawn(Options{Executable: "/bin/sh", Args: []string{"-c", "read line; echo \"got:$line\""}})
	require.NoError(t, err)

	_, exited := p.PollExit()
	assert.False(t, exited)

	require.NoError(t, p.SendLine("say hello world"))

	line, err := bufio.NewReader(p.Stdout()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "got:say hello world\n", line)

	status := waitExit(t, p)
	assert.Equal(t, 0, status.Code)
	assert.Equal(t, "exit code 0", status.String())
}

func TestPollExitReportsCode(t *testing.T) {
	p, err := Spawn(Options{Executable: "/bin/sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)

	status := waitExit(t, p)
	assert.Equal(t, 3, status.Code)

	again, ok := p.PollExit()
	assert.True(t, ok, "exit stays observed")
	assert.Equal(t, status, again)
}

func TestSendLineAfterExitIsNoop(t *testing.T) {
	p, err := Spawn(Options{Executable: "/bin/sh", Args: []string{"-c", "exit 0"}})
	require.NoError(t, err)
	waitExit(t, p)

	assert.NoError(t, p.SendLine("stop"))
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close(), "close is idempotent")
}

func TestCloseAfterExitKeepsOutput(t *testing.T) {
	p, err := Spawn(Options{Executable: "/bin/sh", Args: []string{"-c", "read line; echo \"bye $line\""}})
	require.NoError(t, err)
	require.NoError(t, p.SendLine("now"))
	waitExit(t, p)

	require.NoError(t, p.Close())
	line, err := bufio.NewReader(p.Stdout()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "bye now\n", line)
}

func TestOutputSurvivesExit(t *testing.T) {
	p, err := Spawn(Options{Executable: "/bin/sh", Args: []string{"-c", "echo one; echo two"}})
	require.NoError(t, err)
	waitExit(t, p)

	r := bufio.NewReader(p.Stdout())
	first, err := r.ReadString('\n')
	require.NoError(t, err)
	second, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "one\n", first)
	assert.Equal(t, "two\n", second)
}

func TestEnvIsAppended(t *testing.T) {
	p, err := Spawn(Options{
		Executable: "/bin/sh",
		Args:       []string{"-c", "echo $GAMEWARD_TEST"},
		Env:        []string{"GAMEWARD_TEST=launcher"},
	})
	require.NoError(t, err)

	line, err := bufio.NewReader(p.Stdout()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "launcher\n", line)
	waitExit(t, p)
}

func TestKill(t *testing.T) {
	p, err := Spawn(Options{Executable: "/bin/sh", Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)
	assert.Greater(t, p.PID(), 0)

	require.NoError(t, p.Kill())
	status := waitExit(t, p)
	assert.NotEqual(t, 0, status.Code)

	assert.NoError(t, p.Kill(), "second kill is a no-op")
}
