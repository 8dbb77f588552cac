// Package app reads the launcher's root-only configuration: environment
// variables first, an optional TOML job file underneath
// them, and pre-resolves the external tool paths (ssh/scp/rsh/rcp/sh/env)
// the launch driver execs later.
package app

import (
	"os"
	"os/exec"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/llnl/spawntree"
	"github.com/llnl/spawntree/network"
)

// JobFile is the optional TOML job description accepted alongside (and
// underneath) the SPAWN_* environment variables.
type JobFile struct {
	Degree   int    `toml:"degree"`
	Net      string `toml:"net"`
	Sh       string `toml:"sh"`
	Local    string `toml:"local"`
	Exe      string `toml:"exe"`
	PPN      int    `toml:"ppn"`
	PMI      bool   `toml:"pmi"`
	Ring     bool   `toml:"ring"`
	FIFO     bool   `toml:"fifo"`
	BcastBin bool   `toml:"bcast_bin"`
}

// LoadJobFile parses a TOML job file. A file that is missing or cannot be
// parsed is an IOError; callers only load one when --config/SPAWN_CONFIG
// names one.
func LoadJobFile(path string) (*JobFile, error) {
	jf := &JobFile{}
	if _, err := toml.DecodeFile(path, jf); err != nil {
		return nil, spawntree.NewIOError("reading job file "+path, err)
	}
	return jf, nil
}

// Config is the root's fully-resolved configuration: the union of
// SPAWN_* environment variables and an optional job file, with the
// environment always winning on conflict.
type Config struct {
	Degree   int
	Net      network.Kind
	Sh       spawntree.ShellKind
	Local    spawntree.LocalKind
	Copy     bool
	Exe      string
	PPN      int
	PMI      bool
	Ring     bool
	FIFO     bool
	BcastBin bool
	MPIR     string // "", "spawn", or "app"

	Tools map[string]string
}

// Default values for the root's configuration.
const (
	defaultDegree = 2
	defaultNet    = network.KindTCP
	defaultSh     = spawntree.ShellRSH
	defaultLocal  = spawntree.LocalDirect
	defaultExe    = "/bin/hostname"
	defaultPPN    = 1
)

// DefaultConfig returns a Config holding the documented defaults, before
// any environment or job-file override is applied.
func DefaultConfig() Config {
	return Config{
		Degree: defaultDegree,
		Net:    defaultNet,
		Sh:     defaultSh,
		Local:  defaultLocal,
		Exe:    defaultExe,
		PPN:    defaultPPN,
	}
}

// applyJobFile overlays jf onto c wherever jf sets a non-zero value; the
// environment still wins, since LoadConfig always calls applyEnv second.
func (c *Config) applyJobFile(jf *JobFile) {
	if jf.Degree != 0 {
		c.Degree = jf.Degree
	}
	if jf.Net != "" {
		c.Net = network.Kind(jf.Net)
	}
	if jf.Sh != "" {
		c.Sh = spawntree.ShellKind(jf.Sh)
	}
	if jf.Local != "" {
		c.Local = spawntree.LocalKind(jf.Local)
	}
	if jf.Exe != "" {
		c.Exe = jf.Exe
	}
	if jf.PPN != 0 {
		c.PPN = jf.PPN
	}
	c.PMI = c.PMI || jf.PMI
	c.Ring = c.Ring || jf.Ring
	c.FIFO = c.FIFO || jf.FIFO
	c.BcastBin = c.BcastBin || jf.BcastBin
}

// applyEnv overlays the SPAWN_* environment variables onto c, validating
// every recognized value.
func (c *Config) applyEnv() error {
	if v := os.Getenv("SPAWN_NET"); v != "" {
		switch v {
		case "tcp":
			c.Net = network.KindTCP
		case "ibud":
			return spawntree.NewConfigError("SPAWN_NET=ibud is not supported by this transport layer; use tcp")
		default:
			return spawntree.NewConfigError("SPAWN_NET must be tcp or ibud, got %q", v)
		}
	}
	if v := os.Getenv("SPAWN_DEGREE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 {
			return spawntree.NewConfigError("SPAWN_DEGREE must be an integer >= 2, got %q", v)
		}
		c.Degree = n
	}
	if v := os.Getenv("SPAWN_SH"); v != "" {
		switch v {
		case "ssh":
			c.Sh = spawntree.ShellSSH
		case "rsh":
			c.Sh = spawntree.ShellRSH
		default:
			return spawntree.NewConfigError("SPAWN_SH must be ssh or rsh, got %q", v)
		}
	}
	if v := os.Getenv("SPAWN_LOCAL"); v != "" {
		switch v {
		case "sh":
			c.Local = spawntree.LocalShell
		case "direct":
			c.Local = spawntree.LocalDirect
		default:
			return spawntree.NewConfigError("SPAWN_LOCAL must be sh or direct, got %q", v)
		}
	}
	if v := os.Getenv("SPAWN_COPY"); v != "" {
		b, err := parseBoolFlag(v)
		if err != nil {
			return spawntree.NewConfigError("SPAWN_COPY must be 0 or 1, got %q", v)
		}
		c.Copy = b
	}
	if v := os.Getenv("SPAWN_EXE"); v != "" {
		c.Exe = v
	}
	if v := os.Getenv("SPAWN_PPN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return spawntree.NewConfigError("SPAWN_PPN must be an integer >= 1, got %q", v)
		}
		c.PPN = n
	}
	if v := os.Getenv("SPAWN_PMI"); v != "" {
		b, err := parseBoolFlag(v)
		if err != nil {
			return spawntree.NewConfigError("SPAWN_PMI must be 0 or 1, got %q", v)
		}
		c.PMI = b
	}
	if v := os.Getenv("SPAWN_RING"); v != "" {
		b, err := parseBoolFlag(v)
		if err != nil {
			return spawntree.NewConfigError("SPAWN_RING must be 0 or 1, got %q", v)
		}
		c.Ring = b
	}
	if v := os.Getenv("SPAWN_FIFO"); v != "" {
		b, err := parseBoolFlag(v)
		if err != nil {
			return spawntree.NewConfigError("SPAWN_FIFO must be 0 or 1, got %q", v)
		}
		c.FIFO = b
	}
	if v := os.Getenv("SPAWN_BCAST_BIN"); v != "" {
		b, err := parseBoolFlag(v)
		if err != nil {
			return spawntree.NewConfigError("SPAWN_BCAST_BIN must be 0 or 1, got %q", v)
		}
		c.BcastBin = b
	}
	if v := os.Getenv("SPAWN_DBG"); v != "" {
		switch v {
		case "spawn", "app":
			c.MPIR = v
		default:
			return spawntree.NewConfigError("SPAWN_DBG must be spawn or app, got %q", v)
		}
	}
	return nil
}

func parseBoolFlag(v string) (bool, error) {
	switch v {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, spawntree.NewConfigError("expected 0 or 1, got %q", v)
	}
}

// LoadConfig builds the root's Config starting from DefaultConfig,
// overlaying jobFilePath's TOML (if non-empty), then the SPAWN_*
// environment.
func LoadConfig(jobFilePath string) (Config, error) {
	c := DefaultConfig()

	if jobFilePath != "" {
		jf, err := LoadJobFile(jobFilePath)
		if err != nil {
			return Config{}, err
		}
		c.applyJobFile(jf)
	}

	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}

	tools, err := ResolveTools(c.Sh)
	if err != nil {
		return Config{}, err
	}
	c.Tools = tools

	return c, nil
}

// toolNames are the external commands the launch driver execs.
func toolNames(sh spawntree.ShellKind) []string {
	return []string{string(sh), "scp", "rsh", "rcp", "sh", "env"}
}

// ResolveTools resolves each external command the launcher execs against
// $PATH once at startup, so every downstream spawn process execs an
// absolute path instead of re-searching $PATH on every node. A command
// not found on $PATH is kept as its bare name.
func ResolveTools(sh spawntree.ShellKind) (map[string]string, error) {
	tools := make(map[string]string)
	for _, name := range toolNames(sh) {
		if path, err := exec.LookPath(name); err == nil {
			tools[name] = path
		} else {
			tools[name] = name
		}
	}
	return tools, nil
}
