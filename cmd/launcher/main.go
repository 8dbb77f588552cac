// Command launcher is the entry point of the spawn tree: a
// root process started by the user with a host list, and every other
// process its own copy re-exec'd on a child host with SPAWN_PARENT/
// SPAWN_ID set in its environment.
package main

import (
	"os"
	"strconv"
	"time"

	"github.com/llnl/spawntree"
	"github.com/llnl/spawntree/app"
	"github.com/llnl/spawntree/log"
	"github.com/llnl/spawntree/network"
)

func main() {
	if parent := os.Getenv("SPAWN_PARENT"); parent != "" {
		runChild(parent)
		return
	}

	cliApp := app.NewApp(runRoot)
	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runRoot(hosts []string, cfg app.Config) error {
	self, err := os.Hostname()
	if err != nil {
		return spawntree.NewIOError("getting own hostname", err)
	}
	selfPath, err := os.Executable()
	if err != nil {
		return spawntree.NewIOError("resolving own executable path", err)
	}

	s, err := spawntree.NewRootSession(spawntree.RootParams{
		Hosts:       append([]string{self}, hosts...),
		Degree:      cfg.Degree,
		Net:         cfg.Net,
		Shell:       cfg.Sh,
		Local:       cfg.Local,
		CopyExe:     cfg.Copy,
		SelfExePath: selfPath,
		ToolPaths:   cfg.Tools,
		MPIR:        cfg.MPIR,
		JobID:       spawntree.NewUUID(),
	})
	if err != nil {
		return err
	}
	defer s.Endpoint.Close()
	defer s.Tree.Teardown()

	return run(s, &cfg)
}

func runChild(parentAddr string) error {
	rankStr := os.Getenv("SPAWN_ID")
	rank, err := strconv.Atoi(rankStr)
	if err != nil {
		log.Fatalf("invalid SPAWN_ID %q: %v", rankStr, err)
	}

	s, err := spawntree.NewChildSession(spawntree.ChildParams{ParentAddr: parentAddr, Rank: rank})
	if err != nil {
		log.Fatal(err)
	}
	defer s.Endpoint.Close()
	defer s.Tree.Teardown()

	if err := run(s, nil); err != nil {
		log.Fatal(err)
	}
	return nil
}

// run executes the post-unfurl steps every spawn process follows
// identically: unfurl the tree, broadcast the application parameters
// (built by root, ignored elsewhere), start the app process group,
// report the critical path, then wait for every local child (spawn
// children plus locally forked app procs) to exit before tearing down.
func run(s *spawntree.Session, cfg *app.Config) error {
	unfurlStart := time.Now()
	if err := s.Unfurl(); err != nil {
		log.Fatal(err)
	}
	unfurlElapsed := float64(time.Since(unfurlStart).Nanoseconds())

	var appParams *network.Map
	if s.IsRoot {
		appParams = network.NewMap()
		appParams.Set("NAME", "GROUP_0")
		appParams.Set("EXE", cfg.Exe)
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatal(spawntree.NewIOError("getting working directory", err))
		}
		appParams.Set("CWD", cwd)
		appParams.Set("PPN", strconv.Itoa(cfg.PPN))
		appParams.Set("PMI", boolStr(cfg.PMI))
		appParams.Set("RING", boolStr(cfg.Ring))
		appParams.Set("FIFO", boolStr(cfg.FIFO))
		appParams.Set("BIN_BCAST", boolStr(cfg.BcastBin))
	}

	merged, err := s.Tree.BroadcastMap(appParams)
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Tree.SignalToRoot(); err != nil {
		log.Fatal(err)
	}

	groupStart := time.Now()
	// App procs rendezvous on the spawn's own endpoint, or on a local
	// endpoint when FIFO is set.
	appEp := s.Endpoint
	if merged.GetDefault("FIFO", "0") == "1" {
		appEp, err = network.Open(network.KindLocal)
		if err != nil {
			log.Fatal(err)
		}
		defer appEp.Close()
	}

	ppn := atoiDefault(merged.GetDefault("PPN", "1"), 1)
	_, err = s.StartGroup(spawntree.StartGroupParams{
		Name:     merged.GetDefault("NAME", "GROUP_0"),
		Exe:      merged.GetDefault("EXE", "/bin/hostname"),
		Cwd:      merged.GetDefault("CWD", "/"),
		PPN:      ppn,
		PMI:      merged.GetDefault("PMI", "0") == "1",
		Ring:     merged.GetDefault("RING", "0") == "1",
		FIFO:     merged.GetDefault("FIFO", "0") == "1",
		BinBcast: merged.GetDefault("BIN_BCAST", "0") == "1",
		MPIRApp:  s.Params.GetDefault("MPIR", "") == "app",
	}, appEp)
	if err != nil {
		log.Fatal(err)
	}
	groupElapsed := float64(time.Since(groupStart).Nanoseconds())

	if _, err := s.Tree.ReduceCriticalPath(
		[]float64{unfurlElapsed, groupElapsed},
		[]string{"unfurl", "app-launch"},
	); err != nil {
		log.Fatal(err)
	}

	if err := s.Tree.SignalFromRoot(); err != nil {
		log.Fatal(err)
	}

	r := spawntree.NewReaper()
	defer r.Stop()
	expected := len(s.Tree.ChildRanks) + ppn
	waitForExits(r, expected)

	return nil
}

// waitForExits polls the reaper until it has observed expected exits,
// rather than truly busy-waiting, to avoid burning CPU.
func waitForExits(r *spawntree.Reaper, expected int) {
	for r.Exited() < expected {
		time.Sleep(10 * time.Millisecond)
	}
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

