package spawntree

import (
	"os"
	"strconv"

	"github.com/llnl/spawntree/network"
)

// MPIR debug-state values.
const (
	MPIRDebugNull     = 0
	MPIRDebugSpawned  = 1
	MPIRDebugAborting = 2
)

// MPIRProcDesc describes one app proc for an attaching debugger: host name, executable name, and pid.
type MPIRProcDesc struct {
	HostName       string
	ExecutableName string
	Pid            int
}

// The MPIR surface is a set of well-known process-wide symbols a debugger
// locates by name, so these
// stay package-level variables rather than Session fields.
var (
	MPIRProctable     []MPIRProcDesc
	MPIRProctableSize int
	MPIRDebugState    = MPIRDebugNull
	MPIRIAmStarter    bool
)

// MPIRBreakpoint is the well-known no-op symbol a debugger sets a
// breakpoint on to learn that MPIRProctable has just been populated.
// It intentionally does nothing.
func MPIRBreakpoint() {}

// gatherMPIRProcTable implements the MPIR proc-table population with
// string interning: the tree gathers (host, pid, exe) per rank to root
// via gather-map, root fills MPIRProctable, interning repeated
// hostname/exe strings so the table doesn't carry N duplicate copies of
// the same string.
func (s *Session) gatherMPIRProcTable(g *Group, exe string, globalRanks []int) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	procmap := network.NewMap()
	for i, rank := range globalRanks {
		key := strconv.Itoa(rank)
		procmap.Set("H"+key, hostname)
		procmap.Set("P"+key, strconv.Itoa(g.Pids[i]))
		procmap.Set("E"+key, exe)
	}

	merged, err := s.Tree.GatherMap(procmap)
	if err != nil {
		return err
	}

	if !s.Tree.IsRoot() {
		return nil
	}

	size := s.Tree.Ranks * len(globalRanks)
	table := make([]MPIRProcDesc, size)
	cache := make(map[string]string)
	intern := func(v string) string {
		if c, ok := cache[v]; ok {
			return c
		}
		cache[v] = v
		return v
	}

	for i := 0; i < size; i++ {
		key := strconv.Itoa(i)
		host := intern(merged.GetDefault("H"+key, ""))
		exeName := intern(merged.GetDefault("E"+key, ""))
		pid, _ := strconv.Atoi(merged.GetDefault("P"+key, "0"))
		table[i] = MPIRProcDesc{HostName: host, ExecutableName: exeName, Pid: pid}
	}

	MPIRProctable = table
	MPIRProctableSize = size
	MPIRDebugState = MPIRDebugSpawned
	MPIRBreakpoint()
	return nil
}
