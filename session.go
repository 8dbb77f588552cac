package spawntree

import (
	"encoding/binary"
	"os"
	"strconv"

	"github.com/llnl/spawntree/network"
	uuid "gopkg.in/satori/go.uuid.v1"
)

// NewUUID mints a random v4 UUID and folds it down to a non-negative int,
// for use as Session.JobID: JobID travels as a plain decimal integer in
// the parameter map alongside everything else, so only the UUID's first
// 8 bytes are used, read big-endian with the top bit cleared (63 bits).
func NewUUID() int {
	id := uuid.NewV4()
	v := binary.BigEndian.Uint64(id[:8])
	return int(v &^ (1 << 63))
}

// Session is the per-process object that holds the tree, endpoint, and
// indices for one spawn process. Exactly one instance
// exists per spawn process, for the duration of the job.
type Session struct {
	Rank   int
	IsRoot bool

	Endpoint network.Endpoint
	Pid      int

	Tree   *Tree
	Params *network.Map
	Groups *GroupRegistry

	// JobID is the session's shared job identifier, propagated to every
	// spawn process in Params under the JOBID key.
	JobID int

	selfExePath string
	toolPaths   map[string]string
	shell       ShellKind
	local       LocalKind
	copyExe     bool
}

// RootParams carries everything the root needs to build its parameter map.
// Hosts[0] is the root's own hostname;
// the rest are the positional CLI arguments.
type RootParams struct {
	Hosts       []string
	Degree      int
	Net         network.Kind
	Shell       ShellKind
	Local       LocalKind
	CopyExe     bool
	SelfExePath string
	ToolPaths   map[string]string
	MPIR        string // "", "spawn", or "app"
	JobID       int
}

// NewRootSession builds the root's Session: it opens the main endpoint,
// assembles the parameter map (N, per-host keys, DEG, SH, LOCAL, COPY,
// EXE, resolved tool paths, MPIR), and computes its own tree topology.
func NewRootSession(p RootParams) (*Session, error) {
	if len(p.Hosts) == 0 {
		return nil, NewConfigError("root session requires at least one host (itself)")
	}

	ep, err := network.Open(p.Net)
	if err != nil {
		return nil, err
	}

	params := network.NewMap()
	params.Set("N", strconv.Itoa(len(p.Hosts)))
	for i, host := range p.Hosts {
		params.Set(strconv.Itoa(i), host)
	}
	params.Set("DEG", strconv.Itoa(p.Degree))
	params.Set("SH", string(p.Shell))
	params.Set("LOCAL", string(p.Local))
	params.Set("EXE", p.SelfExePath)
	if p.CopyExe {
		params.Set("COPY", "1")
	} else {
		params.Set("COPY", "0")
	}
	for tool, path := range p.ToolPaths {
		params.Set(tool, path)
	}
	if p.MPIR != "" {
		params.Set("MPIR", p.MPIR)
	}
	params.Set("JOBID", strconv.Itoa(p.JobID))

	tree, err := NewTree(0, len(p.Hosts), p.Degree)
	if err != nil {
		return nil, err
	}

	return &Session{
		Rank:        0,
		IsRoot:      true,
		Endpoint:    ep,
		Pid:         os.Getpid(),
		Tree:        tree,
		Params:      params,
		Groups:      NewGroupRegistry(),
		JobID:       p.JobID,
		selfExePath: p.SelfExePath,
		toolPaths:   p.ToolPaths,
		shell:       p.Shell,
		local:       p.Local,
		copyExe:     p.CopyExe,
	}, nil
}

// ChildParams carries what a non-root needs to connect back to its parent:
// the parent's endpoint address and this spawn's
// own rank, both supplied via SPAWN_PARENT/SPAWN_ID.
type ChildParams struct {
	ParentAddr string
	Rank       int
}

// NewChildSession connects to the parent, exchanges {ID, PID} for the
// parameter map, and computes its own tree topology from the received N
// and DEG.
func NewChildSession(p ChildParams) (*Session, error) {
	parentCh, err := network.Connect(p.ParentAddr)
	if err != nil {
		return nil, err
	}

	pid := os.Getpid()
	idmap := network.NewMap()
	idmap.Set("ID", strconv.Itoa(p.Rank))
	idmap.Set("PID", strconv.Itoa(pid))
	if err := network.WriteMap(parentCh, idmap); err != nil {
		return nil, err
	}

	params, err := network.ReadMap(parentCh)
	if err != nil {
		return nil, err
	}

	nStr, ok := params.Get("N")
	if !ok {
		return nil, NewProtocolError("child session: parameter map missing N")
	}
	ranks, err := strconv.Atoi(nStr)
	if err != nil {
		return nil, NewConfigError("child session: invalid N %q", nStr)
	}
	degree := 2
	if degStr, ok := params.Get("DEG"); ok {
		d, err := strconv.Atoi(degStr)
		if err != nil {
			return nil, NewConfigError("child session: invalid DEG %q", degStr)
		}
		degree = d
	}

	tree, err := NewTree(p.Rank, ranks, degree)
	if err != nil {
		return nil, err
	}
	tree.ParentCh = parentCh

	// Infer our own endpoint's transport kind from the parent's address.
	netKind, err := network.KindOf(p.ParentAddr)
	if err != nil {
		return nil, err
	}
	ep, err := network.Open(netKind)
	if err != nil {
		return nil, err
	}

	jobID := 0
	if idStr, ok := params.Get("JOBID"); ok {
		if v, err := strconv.Atoi(idStr); err == nil {
			jobID = v
		}
	}

	// The root stored its launcher path and resolved tool paths in params.
	toolPaths := make(map[string]string)
	for _, name := range []string{"ssh", "scp", "rsh", "rcp", "sh", "env"} {
		if v, ok := params.Get(name); ok {
			toolPaths[name] = v
		}
	}

	return &Session{
		Rank:        p.Rank,
		IsRoot:      false,
		Endpoint:    ep,
		Pid:         pid,
		Tree:        tree,
		Params:      params,
		Groups:      NewGroupRegistry(),
		JobID:       jobID,
		selfExePath: params.GetDefault("EXE", ""),
		toolPaths:   toolPaths,
		shell:       ShellKind(params.GetDefault("SH", string(ShellRSH))),
		local:       LocalKind(params.GetDefault("LOCAL", string(LocalDirect))),
		copyExe:     params.GetDefault("COPY", "0") == "1",
	}, nil
}

// Unfurl optionally relays the launcher
// binary to every child host, fork-execs each child in turn, then accepts
// each child's connection (matching it to its tree slot by the global id
// it reports), records its channel/pid/host, and forwards the parameter
// map. It finishes with the one-way completion signal to root marking
// "tree is done" (SignalToRoot, not a full barrier).
func (s *Session) Unfurl() error {
	children := s.Tree.ChildRanks
	if len(children) == 0 {
		return s.Tree.SignalToRoot()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return NewIOError("getting working directory", err)
	}

	if s.copyExe {
		hosts := make([]string, len(children))
		for i, rank := range children {
			host, ok := s.Params.Get(strconv.Itoa(rank))
			if !ok {
				return NewConfigError("unfurl: no host recorded for child rank %d", rank)
			}
			hosts[i] = host
		}
		if err := CopyLauncherToChildren(s.selfExePath, hosts, s.toolPaths["scp"], "/tmp"); err != nil {
			return err
		}
	}

	rankToIndex := make(map[int]int, len(children))
	for i, rank := range children {
		rankToIndex[rank] = i

		host, ok := s.Params.Get(strconv.Itoa(rank))
		if !ok {
			return NewConfigError("unfurl: no host recorded for child rank %d", rank)
		}

		spec := ChildSpec{
			Host:     host,
			Cwd:      cwd,
			Exe:      s.selfExePath,
			Args:     []string{s.selfExePath},
			Envs:     []string{"SPAWN_PARENT=" + s.Endpoint.Name(), "SPAWN_ID=" + strconv.Itoa(rank)},
			Remote:   true,
			Shell:    s.shell,
			Local:    s.local,
			ShellBin: s.toolPaths[string(s.shell)],
			EnvBin:   s.toolPaths["env"],
		}

		pid, err := LaunchChild(spec)
		if err != nil {
			return err
		}
		s.Tree.ChildHosts[i] = host
		s.Tree.ChildPids[i] = pid
	}

	for i := 0; i < len(children); i++ {
		ch, err := s.Endpoint.Accept()
		if err != nil {
			return NewProtocolError("unfurl: accepting child %d: %v", i, err)
		}

		idmap, err := network.ReadMap(ch)
		if err != nil {
			return NewProtocolError("unfurl: reading id map from child: %v", err)
		}
		idStr, ok := idmap.Get("ID")
		if !ok {
			return NewProtocolError("unfurl: child id map missing ID")
		}
		globalRank, err := strconv.Atoi(idStr)
		if err != nil {
			return NewConfigError("unfurl: invalid child ID %q", idStr)
		}
		index, ok := rankToIndex[globalRank]
		if !ok {
			return NewProtocolError("unfurl: child reported unknown rank %d", globalRank)
		}

		s.Tree.ChildChs[index] = ch

		if err := network.WriteMap(ch, s.Params); err != nil {
			return NewProtocolError("unfurl: sending params to child %d: %v", index, err)
		}
	}

	return s.Tree.SignalToRoot()
}
