package spawntree

import (
	"github.com/llnl/spawntree/network"
	"golang.org/x/xerrors"
)

// Tree is the spanning tree structure every spawn process builds over
// itself. Topology (rank, ranks, child
// ranks) is filled in early; channels, hostnames and pids are filled in
// during unfurl.
type Tree struct {
	Rank  int
	Ranks int

	ParentCh network.Channel

	ChildRanks []int
	ChildChs   []network.Channel
	ChildHosts []string
	ChildPids  []int
}

// IsRoot reports whether this tree node has no parent.
func (t *Tree) IsRoot() bool { return t.ParentCh == nil }

// Children returns the number of children this node has.
func (t *Tree) Children() int { return len(t.ChildRanks) }

// NewTree computes the k-ary topology for rank within a tree of the
// given size and degree. It does not open any channels;
// those are filled in by the unfurl coordinator.
//
// Processes are arranged in levels of geometrically growing size
// (1, k, k^2, ...). For a node at level L with position p within the
// level, its children are the contiguous ranks
// levelStart(L+1)+p*k .. levelStart(L+1)+p*k+k-1, clipped to < ranks.
func NewTree(rank, ranks, degree int) (*Tree, error) {
	if ranks < 1 {
		return nil, NewConfigError("ranks must be >= 1, got %d", ranks)
	}
	if degree < 2 {
		return nil, NewConfigError("degree must be >= 2, got %d", degree)
	}
	if rank < 0 || rank >= ranks {
		return nil, NewConfigError("rank %d out of range [0, %d)", rank, ranks)
	}

	t := &Tree{Rank: rank, Ranks: ranks}

	levelStart := 0
	levelSize := 1
	for {
		if levelStart <= rank && rank < levelStart+levelSize {
			groupID := rank - levelStart
			childLevelStart := levelStart + levelSize
			firstChild := childLevelStart + groupID*degree
			lastChild := firstChild + degree - 1

			if firstChild < ranks {
				if lastChild >= ranks {
					lastChild = ranks - 1
				}
				n := lastChild - firstChild + 1
				t.ChildRanks = make([]int, n)
				t.ChildChs = make([]network.Channel, n)
				t.ChildHosts = make([]string, n)
				t.ChildPids = make([]int, n)
				for i := 0; i < n; i++ {
					t.ChildRanks[i] = firstChild + i
				}
			}
			break
		}
		levelStart += levelSize
		levelSize *= degree
	}

	return t, nil
}

// ParentRank returns the rank of own's parent and true, or (0, false)
// at the root. It is provided mainly for tests that want to verify the
// topology invariant independently of NewTree's own construction.
func ParentRank(rank, ranks, degree int) (int, bool, error) {
	if rank == 0 {
		return 0, false, nil
	}
	if ranks < 1 {
		return 0, false, NewConfigError("ranks must be >= 1, got %d", ranks)
	}
	if degree < 2 {
		return 0, false, NewConfigError("degree must be >= 2, got %d", degree)
	}
	if rank < 0 || rank >= ranks {
		return 0, false, NewConfigError("rank %d out of range [0, %d)", rank, ranks)
	}

	prevStart := 0
	levelStart := 0
	levelSize := 1
	for {
		if levelStart <= rank && rank < levelStart+levelSize {
			position := rank - levelStart
			return prevStart + position/degree, true, nil
		}
		prevStart = levelStart
		levelStart += levelSize
		levelSize *= degree
		if levelStart >= ranks {
			return 0, false, xerrors.Errorf("rank %d not found in any level", rank)
		}
	}
}

// Teardown closes every channel this node owns, in reverse order
// (children first, then parent).
func (t *Tree) Teardown() {
	for i := range t.ChildChs {
		network.Disconnect(t.ChildChs[i])
		t.ChildChs[i] = nil
	}
	network.Disconnect(t.ParentCh)
	t.ParentCh = nil
}
