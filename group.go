package spawntree

import (
	"os"
	"sync"

	"github.com/llnl/spawntree/network"
)

// GroupID is a stable integer identifying a process group within a
// session, replacing the source's raw pointer fields and %p-stringified
// side tables.
type GroupID int

// Group is the set of app procs forked by one spawn process from one
// StartGroup call.
type Group struct {
	ID     GroupID
	Name   string
	Params *network.Map
	Pids   []int
}

// GroupRegistry owns every Group for a session: an integer-id arena plus
// name→id and pid→id indices, accessed only by
// the main thread except for pid lookups, which the reaper thread also
// performs under the same mutex.
type GroupRegistry struct {
	mu      sync.Mutex
	groups  []*Group // arena; index i holds GroupID(i), nil once released
	byName  map[string]GroupID
	byPid   map[int]GroupID
}

// NewGroupRegistry returns an empty registry.
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{
		byName: make(map[string]GroupID),
		byPid:  make(map[int]GroupID),
	}
}

// New allocates a Group with the given name and params, recording it in
// both indices.
func (r *GroupRegistry) New(name string, params *network.Map) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, NewConfigError("process group %q already exists", name)
	}

	g := &Group{ID: GroupID(len(r.groups)), Name: name, Params: params}
	r.groups = append(r.groups, g)
	r.byName[name] = g.ID
	return g, nil
}

// RecordPid records that pid belongs to group g.
func (r *GroupRegistry) RecordPid(g *Group, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.Pids = append(g.Pids, pid)
	r.byPid[pid] = g.ID
}

// ByName returns the group with the given name, or nil if none exists.
func (r *GroupRegistry) ByName(name string) *Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.groups[id]
}

// ByPid returns the group owning pid, or nil if pid is unknown. Safe to
// call from the reaper goroutine.
func (r *GroupRegistry) ByPid(pid int) *Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPid[pid]
	if !ok {
		return nil
	}
	return r.groups[id]
}

// Release drops g from both indices; its slot in the arena is left nil
// so existing GroupIDs of other groups remain valid.
func (r *GroupRegistry) Release(g *Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, g.Name)
	for _, pid := range g.Pids {
		delete(r.byPid, pid)
	}
	r.groups[g.ID] = nil
}

// StartGroupParams carries the application parameters read from the wire
// map by start_group.
type StartGroupParams struct {
	Name     string
	Exe      string
	Cwd      string
	PPN      int
	PMI      bool
	Ring     bool
	FIFO     bool
	BinBcast bool
	MPIRApp  bool
}

// StartGroup allocates the group, optionally
// relays the application binary, forks PPN local app procs with
// MV2_PMI_ADDR (and MV2_MPIR=1 under MPIR app-debug mode) in their
// environment, then runs the PMI and/or ring exchanges on their behalf.
func (s *Session) StartGroup(p StartGroupParams, appEp network.Endpoint) (*Group, error) {
	params := network.NewMap()
	params.Set("NAME", p.Name)
	params.Set("EXE", p.Exe)

	g, err := s.Groups.New(p.Name, params)
	if err != nil {
		return nil, err
	}

	exe := p.Exe
	if p.BinBcast {
		exe, err = s.Tree.BcastFile(p.Exe, os.TempDir())
		if err != nil {
			return nil, err
		}
	}

	epName := appEp.Name()
	globalRanks := make([]int, p.PPN)
	for i := 0; i < p.PPN; i++ {
		globalRanks[i] = s.Tree.Rank*p.PPN + i

		env := []string{"MV2_PMI_ADDR=" + epName}
		if p.MPIRApp {
			env = append(env, "MV2_MPIR=1")
		}
		pid, err := ForkAppProc(s.local, s.toolPaths["sh"], exe, p.Cwd, env)
		if err != nil {
			return nil, err
		}
		s.Groups.RecordPid(g, pid)
	}

	if p.MPIRApp {
		if err := s.gatherMPIRProcTable(g, exe, globalRanks); err != nil {
			return nil, err
		}
	}

	if p.PMI {
		jobID := s.JobID
		if _, err := s.Tree.PMIExchange(appEp, globalRanks, s.Tree.Ranks*p.PPN, jobID); err != nil {
			return nil, err
		}
	}
	if p.Ring {
		if err := s.Tree.AcceptAndRingExchange(appEp, globalRanks, s.Tree.Ranks*p.PPN); err != nil {
			return nil, err
		}
	}

	return g, nil
}
