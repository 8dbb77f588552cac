package spawntree

import (
	"strconv"

	"github.com/llnl/spawntree/network"
)

const (
	keyLeft  = "LEFT"
	keyRight = "RIGHT"
)

// RingScan establishes, for each spawn process, the ring neighbor
// addresses to the left and right of its subtree. own
// carries this spawn's own LEFT/RIGHT contribution (from its local app
// procs), or is empty if it has none.
func (t *Tree) RingScan(own *network.Map) (*network.Map, error) {
	children := make([]*network.Map, len(t.ChildChs))
	for i, ch := range t.ChildChs {
		child, err := network.ReadMap(ch)
		if err != nil {
			return nil, NewProtocolError("ring-scan: reading from child %d: %v", i, err)
		}
		children[i] = child
	}

	subtreeLeft, _ := own.Get(keyLeft)
	for _, c := range children {
		if subtreeLeft != "" {
			break
		}
		if v, ok := c.Get(keyLeft); ok && v != "" {
			subtreeLeft = v
		}
	}
	subtreeRight, _ := own.Get(keyRight)
	for i := len(children) - 1; i >= 0; i-- {
		if subtreeRight != "" {
			break
		}
		if v, ok := children[i].Get(keyRight); ok && v != "" {
			subtreeRight = v
		}
	}

	if !t.IsRoot() {
		up := network.NewMap()
		up.Set(keyLeft, subtreeLeft)
		up.Set(keyRight, subtreeRight)
		if err := network.WriteMap(t.ParentCh, up); err != nil {
			return nil, NewProtocolError("ring-scan: writing to parent: %v", err)
		}

		down, err := network.ReadMap(t.ParentCh)
		if err != nil {
			return nil, NewProtocolError("ring-scan: reading downward from parent: %v", err)
		}
		parentLeft, _ := down.Get(keyLeft)
		parentRight, _ := down.Get(keyRight)

		if err := t.ringDistribute(children, subtreeRight, parentRight); err != nil {
			return nil, err
		}

		out := network.NewMap()
		out.Set(keyLeft, parentLeft)
		if len(children) > 0 {
			childLeft, _ := children[0].Get(keyLeft)
			out.Set(keyRight, childLeft)
		} else {
			out.Set(keyRight, parentRight)
		}
		return out, nil
	}

	// Root: the ring wraps, so root's outgoing LEFT/RIGHT are swapped
	// relative to what it received.
	parentLeft, parentRight := subtreeRight, subtreeLeft

	if err := t.ringDistribute(children, subtreeRight, parentRight); err != nil {
		return nil, err
	}

	out := network.NewMap()
	out.Set(keyLeft, parentLeft)
	if len(children) > 0 {
		childLeft, _ := children[0].Get(keyLeft)
		out.Set(keyRight, childLeft)
	} else {
		out.Set(keyRight, parentRight)
	}
	return out, nil
}

// ringDistribute computes and sends (LEFT_i, RIGHT_i) to each child i:
// LEFT_i is the RIGHT reported by the immediately
// preceding participant (self if i=0, else child i-1); RIGHT_i is the LEFT
// reported by the immediately following participant (the parent-provided
// RIGHT if i is the last child, else child i+1).
func (t *Tree) ringDistribute(children []*network.Map, ownRight, parentRight string) error {
	for i, ch := range t.ChildChs {
		var left string
		if i == 0 {
			left = ownRight
		} else {
			left, _ = children[i-1].Get(keyRight)
		}

		var right string
		if i == len(t.ChildChs)-1 {
			right = parentRight
		} else {
			right, _ = children[i+1].Get(keyLeft)
		}

		out := network.NewMap()
		out.Set(keyLeft, left)
		out.Set(keyRight, right)
		if err := network.WriteMap(ch, out); err != nil {
			return NewProtocolError("ring-scan: writing downward to child %d: %v", i, err)
		}
	}
	return nil
}

// RingExchange runs the app-proc-facing half of the ring over channels
// that are already accepted (see AcceptAndRingExchange): it derives this
// spawn's own LEFT/RIGHT contribution from the first and last of the
// procs' advertised addresses in addrs, folds it into RingScan, then
// writes each app proc its {RANK, RANKS, LEFT, RIGHT}.
// globalRanks holds each proc's job-wide rank, in the same order as procs
// and addrs; totalRanks is the job size.
func (t *Tree) RingExchange(procs []network.Channel, globalRanks []int, totalRanks int, addrs []string) error {
	n := len(procs)
	own := network.NewMap()
	if n > 0 {
		own.Set(keyLeft, addrs[0])
		own.Set(keyRight, addrs[n-1])
	}

	scanned, err := t.RingScan(own)
	if err != nil {
		return err
	}
	parentLeft, _ := scanned.Get(keyLeft)
	parentRight, _ := scanned.Get(keyRight)

	for i, ch := range procs {
		var left string
		if i == 0 {
			left = parentLeft
		} else {
			left = addrs[i-1]
		}
		var right string
		if i == n-1 {
			right = parentRight
		} else {
			right = addrs[i+1]
		}

		out := network.NewMap()
		out.Set("RANK", strconv.Itoa(globalRanks[i]))
		out.Set("RANKS", strconv.Itoa(totalRanks))
		out.Set(keyLeft, left)
		out.Set(keyRight, right)
		if err := network.WriteMap(ch, out); err != nil {
			return NewProtocolError("ring-exchange: writing to app proc %d: %v", i, err)
		}
	}
	return nil
}

// AcceptAndRingExchange accepts one channel per local app proc on ep, reads
// each proc's advertised {ID, ADDR} map, sorts them into rank order, and
// runs RingExchange over the result.
// This is the accept-loop counterpart PMIExchange already does for itself;
// ring keeps it separate since the wire sequence differs (no barrier/get
// rounds, just one address exchange).
func (t *Tree) AcceptAndRingExchange(ep network.Endpoint, globalRanks []int, totalRanks int) error {
	numProcs := len(globalRanks)
	chs := make([]network.Channel, numProcs)
	addrs := make([]string, numProcs)

	rankIndex := make(map[int]int, numProcs)
	for i, r := range globalRanks {
		rankIndex[r] = i
	}

	for i := 0; i < numProcs; i++ {
		ch, err := ep.Accept()
		if err != nil {
			return NewProtocolError("ring-exchange: accepting app proc %d: %v", i, err)
		}

		idmap, err := network.ReadMap(ch)
		if err != nil {
			return NewProtocolError("ring-exchange: reading id map from app proc %d: %v", i, err)
		}
		idStr, ok := idmap.Get("ID")
		if !ok {
			return NewProtocolError("ring-exchange: app proc id map missing ID")
		}
		rank, err := strconv.Atoi(idStr)
		if err != nil {
			return NewConfigError("ring-exchange: invalid app proc ID %q", idStr)
		}
		index, ok := rankIndex[rank]
		if !ok {
			return NewProtocolError("ring-exchange: app proc reported unknown rank %d", rank)
		}

		chs[index] = ch
		addrs[index] = idmap.GetDefault("ADDR", "")
	}

	return t.RingExchange(chs, globalRanks, totalRanks, addrs)
}
