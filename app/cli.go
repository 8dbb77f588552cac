package app

import (
	"github.com/urfave/cli"

	"github.com/llnl/spawntree"
	"github.com/llnl/spawntree/network"
)

// Flags wires the root-only knobs as urfave/cli flags, each falling
// back to its SPAWN_* environment variable via EnvVar.
func Flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "net", EnvVar: "SPAWN_NET", Value: string(defaultNet), Usage: "transport kind: tcp or ibud"},
		cli.IntFlag{Name: "degree", EnvVar: "SPAWN_DEGREE", Value: defaultDegree, Usage: "tree fan-out, >= 2"},
		cli.StringFlag{Name: "sh", EnvVar: "SPAWN_SH", Value: string(defaultSh), Usage: "remote shell: ssh or rsh"},
		cli.StringFlag{Name: "local", EnvVar: "SPAWN_LOCAL", Value: string(defaultLocal), Usage: "local exec mode: sh or direct"},
		cli.BoolFlag{Name: "copy", EnvVar: "SPAWN_COPY", Usage: "remote-copy the launcher before exec"},
		cli.StringFlag{Name: "exe", EnvVar: "SPAWN_EXE", Value: defaultExe, Usage: "application executable"},
		cli.IntFlag{Name: "ppn", EnvVar: "SPAWN_PPN", Value: defaultPPN, Usage: "app procs per node"},
		cli.BoolFlag{Name: "pmi", EnvVar: "SPAWN_PMI", Usage: "run PMI rendezvous for app procs"},
		cli.BoolFlag{Name: "ring", EnvVar: "SPAWN_RING", Usage: "run ring-neighbor exchange for app procs"},
		cli.BoolFlag{Name: "fifo", EnvVar: "SPAWN_FIFO", Usage: "use FIFO-style rendezvous instead of sockets"},
		cli.BoolFlag{Name: "bcast-bin", EnvVar: "SPAWN_BCAST_BIN", Usage: "broadcast the app binary instead of assuming a shared filesystem"},
		cli.StringFlag{Name: "dbg", EnvVar: "SPAWN_DBG", Usage: "MPIR attach point: spawn or app"},
		cli.StringFlag{Name: "config", EnvVar: "SPAWN_CONFIG", Usage: "optional TOML job file"},
	}
}

// ConfigFromContext builds a Config from a cli.Context the way LoadConfig
// builds one from the environment: job file first (if --config/SPAWN_CONFIG
// names one), then flag values (which themselves already fall back to
// SPAWN_* via EnvVar), so the CLI is an alternate surface over the same
// environment-over-job-file precedence.
func ConfigFromContext(ctx *cli.Context) (Config, error) {
	c := DefaultConfig()

	if path := ctx.String("config"); path != "" {
		jf, err := LoadJobFile(path)
		if err != nil {
			return Config{}, err
		}
		c.applyJobFile(jf)
	}

	// Only flags set on the command line or through their SPAWN_* variable
	// override the job file; a flag's own default does not.
	if v := ctx.String("net"); ctx.IsSet("net") && v != "" {
		switch v {
		case "tcp":
			c.Net = network.KindTCP
		case "ibud":
			return Config{}, spawntree.NewConfigError("--net=ibud is not supported by this transport layer; use tcp")
		default:
			return Config{}, spawntree.NewConfigError("--net must be tcp or ibud, got %q", v)
		}
	}
	if d := ctx.Int("degree"); ctx.IsSet("degree") && d != 0 {
		if d < 2 {
			return Config{}, spawntree.NewConfigError("--degree must be >= 2, got %d", d)
		}
		c.Degree = d
	}
	if v := ctx.String("sh"); ctx.IsSet("sh") && v != "" {
		switch v {
		case "ssh":
			c.Sh = spawntree.ShellSSH
		case "rsh":
			c.Sh = spawntree.ShellRSH
		default:
			return Config{}, spawntree.NewConfigError("--sh must be ssh or rsh, got %q", v)
		}
	}
	if v := ctx.String("local"); ctx.IsSet("local") && v != "" {
		switch v {
		case "sh":
			c.Local = spawntree.LocalShell
		case "direct":
			c.Local = spawntree.LocalDirect
		default:
			return Config{}, spawntree.NewConfigError("--local must be sh or direct, got %q", v)
		}
	}
	c.Copy = ctx.Bool("copy")
	if v := ctx.String("exe"); ctx.IsSet("exe") && v != "" {
		c.Exe = v
	}
	if p := ctx.Int("ppn"); ctx.IsSet("ppn") && p != 0 {
		if p < 1 {
			return Config{}, spawntree.NewConfigError("--ppn must be >= 1, got %d", p)
		}
		c.PPN = p
	}
	c.PMI = c.PMI || ctx.Bool("pmi")
	c.Ring = c.Ring || ctx.Bool("ring")
	c.FIFO = c.FIFO || ctx.Bool("fifo")
	c.BcastBin = c.BcastBin || ctx.Bool("bcast-bin")
	if v := ctx.String("dbg"); v != "" {
		switch v {
		case "spawn", "app":
			c.MPIR = v
		default:
			return Config{}, spawntree.NewConfigError("--dbg must be spawn or app, got %q", v)
		}
	}

	tools, err := ResolveTools(c.Sh)
	if err != nil {
		return Config{}, err
	}
	c.Tools = tools

	return c, nil
}

// NewApp builds the launcher's CLI using github.com/urfave/cli (v1).
// Hosts are taken positionally; run is invoked with that host list (the
// positional arguments only, without the root's own hostname) and the
// resolved Config.
func NewApp(run func(hosts []string, cfg Config) error) *cli.App {
	a := cli.NewApp()
	a.Name = "launcher"
	a.Usage = "launch a distributed parallel job over a k-ary spawn tree"
	a.ArgsUsage = "host1 host2 ... hostN"
	a.Flags = Flags()
	a.Action = func(ctx *cli.Context) error {
		cfg, err := ConfigFromContext(ctx)
		if err != nil {
			return err
		}
		hosts := ctx.Args()
		return run([]string(hosts), cfg)
	}
	return a
}
