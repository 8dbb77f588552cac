package spawntree

import (
	"strconv"

	"github.com/llnl/spawntree/network"
)

const (
	pmiBarrier  = "BARRIER"
	pmiGet      = "GET"
	pmiFinalize = "FINALIZE"
)

// PMIExchange runs the minimal PMI rendezvous for the local app procs of
// one process group. ep is the endpoint app procs dial;
// globalRanks is each local proc's job-wide rank, jobID is the job's
// shared identifier, and totalRanks is the job size.
//
// The per-job map comes from a tree allgather every rank participates in,
// so it is the same on every rank; the GET rounds are served from it and
// it is returned to the caller.
func (t *Tree) PMIExchange(ep network.Endpoint, globalRanks []int, totalRanks, jobID int) (*network.Map, error) {
	numProcs := len(globalRanks)

	chs := make([]network.Channel, numProcs)
	for i := 0; i < numProcs; i++ {
		ch, err := ep.Accept()
		if err != nil {
			return nil, NewProtocolError("pmi: accepting app proc %d: %v", i, err)
		}
		chs[i] = ch
	}

	for i, ch := range chs {
		init := network.NewMap()
		init.Set("RANK", strconv.Itoa(globalRanks[i]))
		init.Set("RANKS", strconv.Itoa(totalRanks))
		init.Set("JOBID", strconv.Itoa(jobID))
		if err := network.WriteMap(ch, init); err != nil {
			return nil, NewProtocolError("pmi: sending init to app proc %d: %v", i, err)
		}
	}

	committed := network.NewMap()
	for i, ch := range chs {
		cmd, err := network.ReadString(ch)
		if err != nil {
			return nil, NewProtocolError("pmi: reading barrier command from app proc %d: %v", i, err)
		}
		if cmd != pmiBarrier {
			return nil, NewProtocolError("pmi: app proc %d sent %q, expected %q", i, cmd, pmiBarrier)
		}
		m, err := network.ReadMap(ch)
		if err != nil {
			return nil, NewProtocolError("pmi: reading committed map from app proc %d: %v", i, err)
		}
		committed.Merge(m)
	}

	global, err := t.AllgatherMap(committed)
	if err != nil {
		return nil, err
	}

	for i, ch := range chs {
		if err := network.WriteString(ch, pmiBarrier); err != nil {
			return nil, NewProtocolError("pmi: writing barrier response to app proc %d: %v", i, err)
		}
	}

	for round := 0; round < 2; round++ {
		for i, ch := range chs {
			cmd, err := network.ReadString(ch)
			if err != nil {
				return nil, NewProtocolError("pmi: reading get command from app proc %d: %v", i, err)
			}
			if cmd != pmiGet {
				return nil, NewProtocolError("pmi: app proc %d sent %q, expected %q", i, cmd, pmiGet)
			}
			key, err := network.ReadString(ch)
			if err != nil {
				return nil, NewProtocolError("pmi: reading get key from app proc %d: %v", i, err)
			}
			value := global.GetDefault(key, "")
			if err := network.WriteString(ch, value); err != nil {
				return nil, NewProtocolError("pmi: writing get response to app proc %d: %v", i, err)
			}
		}
	}

	for i, ch := range chs {
		cmd, err := network.ReadString(ch)
		if err != nil {
			return nil, NewProtocolError("pmi: reading finalize from app proc %d: %v", i, err)
		}
		if cmd != pmiFinalize {
			return nil, NewProtocolError("pmi: app proc %d sent %q, expected %q", i, cmd, pmiFinalize)
		}
		if err := network.Disconnect(ch); err != nil {
			return nil, err
		}
	}

	return global, nil
}
