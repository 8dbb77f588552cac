package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llnl/spawntree"
)

// clearSpawnEnv ensures no SPAWN_* variable leaks in from the host
// environment the test binary happens to run under, so each case starts
// from DefaultConfig plus exactly what it sets.
func clearSpawnEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SPAWN_NET", "SPAWN_DEGREE", "SPAWN_SH", "SPAWN_LOCAL", "SPAWN_COPY",
		"SPAWN_EXE", "SPAWN_PPN", "SPAWN_PMI", "SPAWN_RING", "SPAWN_FIFO",
		"SPAWN_BCAST_BIN", "SPAWN_DBG",
	} {
		t.Setenv(k, "")
	}
}

func TestApplyEnvValidation(t *testing.T) {
	cases := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{
			name:   "bad shell",
			env:    map[string]string{"SPAWN_SH": "csh"},
			errMsg: "SPAWN_SH must be ssh or rsh",
		},
		{
			name:   "unsupported net",
			env:    map[string]string{"SPAWN_NET": "ibud"},
			errMsg: "SPAWN_NET=ibud is not supported",
		},
		{
			name:   "unrecognized net",
			env:    map[string]string{"SPAWN_NET": "udp"},
			errMsg: "SPAWN_NET must be tcp or ibud",
		},
		{
			name:   "degree below two",
			env:    map[string]string{"SPAWN_DEGREE": "1"},
			errMsg: "SPAWN_DEGREE must be an integer >= 2",
		},
		{
			name:   "degree not a number",
			env:    map[string]string{"SPAWN_DEGREE": "two"},
			errMsg: "SPAWN_DEGREE must be an integer >= 2",
		},
		{
			name:   "bad local mode",
			env:    map[string]string{"SPAWN_LOCAL": "fork"},
			errMsg: "SPAWN_LOCAL must be sh or direct",
		},
		{
			name:   "ppn below one",
			env:    map[string]string{"SPAWN_PPN": "0"},
			errMsg: "SPAWN_PPN must be an integer >= 1",
		},
		{
			name:   "malformed bool flag",
			env:    map[string]string{"SPAWN_PMI": "yes"},
			errMsg: "SPAWN_PMI must be 0 or 1",
		},
		{
			name:   "bad dbg attach point",
			env:    map[string]string{"SPAWN_DBG": "gdb"},
			errMsg: "SPAWN_DBG must be spawn or app",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearSpawnEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)

			var cfgErr *spawntree.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

// TestBadSpawnShIsConfigErrorAtLoad covers spec.md §8's scenario 5 at the
// config layer this core actually validates it in: a bad SPAWN_SH makes
// LoadConfig return a ConfigError before any Session exists. The
// launcher's CLI path, ConfigFromContext, rejects the same value through
// the --sh flag's SPAWN_SH fallback before runRoot is called, so no child
// process can be launched on an invalid shell choice.
func TestBadSpawnShIsConfigErrorAtLoad(t *testing.T) {
	clearSpawnEnv(t)
	t.Setenv("SPAWN_SH", "csh")

	_, err := LoadConfig("")
	require.Error(t, err)

	var cfgErr *spawntree.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadConfigEnvWinsOverJobFile(t *testing.T) {
	clearSpawnEnv(t)

	jobFilePath := filepath.Join(t.TempDir(), "job.toml")
	jobFileContents := `
degree = 4
sh = "ssh"
exe = "/opt/app/from-job-file"
ppn = 3
`
	require.NoError(t, os.WriteFile(jobFilePath, []byte(jobFileContents), 0o644))

	// SPAWN_DEGREE conflicts with the job file's degree=4 and must win.
	// SPAWN_EXE is left unset, so the job file's exe passes through.
	t.Setenv("SPAWN_DEGREE", "8")

	cfg, err := LoadConfig(jobFilePath)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Degree, "environment must win over the job file")
	assert.Equal(t, spawntree.ShellSSH, cfg.Sh, "job file value used when env doesn't set it")
	assert.Equal(t, "/opt/app/from-job-file", cfg.Exe)
	assert.Equal(t, 3, cfg.PPN)
}

func TestLoadConfigDefaultsWithNoEnvOrJobFile(t *testing.T) {
	clearSpawnEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, defaultDegree, cfg.Degree)
	assert.Equal(t, defaultNet, cfg.Net)
	assert.Equal(t, defaultSh, cfg.Sh)
	assert.Equal(t, defaultLocal, cfg.Local)
	assert.Equal(t, defaultExe, cfg.Exe)
	assert.Equal(t, defaultPPN, cfg.PPN)
}

func TestResolveToolsFallsBackToBareNameWhenNotOnPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir()) // a PATH with nothing in it

	tools, err := ResolveTools(spawntree.ShellSSH)
	require.NoError(t, err)

	assert.Equal(t, "ssh", tools["ssh"])
	assert.Equal(t, "scp", tools["scp"])
	assert.Equal(t, "rsh", tools["rsh"])
	assert.Equal(t, "env", tools["env"])
}
