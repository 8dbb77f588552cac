package spawntree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/llnl/spawntree/network"
	"github.com/montanaflynn/stats"
)

// SignalToRoot is the up-wave of a tree-wide barrier: each
// node reads one byte from every child, in child order, then writes one
// byte to its parent. Root terminates the wave.
func (t *Tree) SignalToRoot() error {
	buf := make([]byte, 1)
	for i, ch := range t.ChildChs {
		if err := ch.Read(buf); err != nil {
			return NewProtocolError("signal-to-root: reading from child %d: %v", i, err)
		}
	}
	if !t.IsRoot() {
		if err := t.ParentCh.Write([]byte{1}); err != nil {
			return NewProtocolError("signal-to-root: writing to parent: %v", err)
		}
	}
	return nil
}

// SignalFromRoot is the down-wave of a tree-wide barrier:
// each node reads one byte from its parent (root has none), then writes
// one byte to every child.
func (t *Tree) SignalFromRoot() error {
	if !t.IsRoot() {
		buf := make([]byte, 1)
		if err := t.ParentCh.Read(buf); err != nil {
			return NewProtocolError("signal-from-root: reading from parent: %v", err)
		}
	}
	for i, ch := range t.ChildChs {
		if err := ch.Write([]byte{1}); err != nil {
			return NewProtocolError("signal-from-root: writing to child %d: %v", i, err)
		}
	}
	return nil
}

// Barrier is a full tree-wide barrier: the up-wave completes everywhere
// before any process observes the down-wave.
func (t *Tree) Barrier() error {
	if err := t.SignalToRoot(); err != nil {
		return err
	}
	return t.SignalFromRoot()
}

// Broadcast reads buf from the parent (root already holds the value to
// send) and writes it to every child in order.
func (t *Tree) Broadcast(buf []byte) error {
	if !t.IsRoot() {
		if err := t.ParentCh.Read(buf); err != nil {
			return NewProtocolError("broadcast: reading from parent: %v", err)
		}
	}
	for i, ch := range t.ChildChs {
		if err := ch.Write(buf); err != nil {
			return NewProtocolError("broadcast: writing to child %d: %v", i, err)
		}
	}
	return nil
}

// BroadcastMap is Broadcast for the map codec. On the root, m is the value
// being sent; on a non-root, m is ignored and the value read from the
// parent is returned instead.
func (t *Tree) BroadcastMap(m *network.Map) (*network.Map, error) {
	if !t.IsRoot() {
		got, err := network.ReadMap(t.ParentCh)
		if err != nil {
			return nil, NewProtocolError("broadcast-map: reading from parent: %v", err)
		}
		m = got
	}
	for i, ch := range t.ChildChs {
		if err := network.WriteMap(ch, m); err != nil {
			return nil, NewProtocolError("broadcast-map: writing to child %d: %v", i, err)
		}
	}
	return m, nil
}

// GatherMap receives a map from each child in order, merging later keys
// over earlier ones, then forwards the merged map to the
// parent unless this node is the root.
func (t *Tree) GatherMap(local *network.Map) (*network.Map, error) {
	merged := local.Clone()
	for i, ch := range t.ChildChs {
		child, err := network.ReadMap(ch)
		if err != nil {
			return nil, NewProtocolError("gather-map: reading from child %d: %v", i, err)
		}
		merged.Merge(child)
	}
	if !t.IsRoot() {
		if err := network.WriteMap(t.ParentCh, merged); err != nil {
			return nil, NewProtocolError("gather-map: writing to parent: %v", err)
		}
	}
	return merged, nil
}

// AllgatherMap is gather-map followed by broadcast-map: every node ends up
// with the same fully merged map.
func (t *Tree) AllgatherMap(local *network.Map) (*network.Map, error) {
	merged, err := t.GatherMap(local)
	if err != nil {
		return nil, err
	}
	return t.BroadcastMap(merged)
}

// ReduceCriticalPath computes the elementwise max of values across all
// children, adds this node's own values, and forwards the result to the
// parent. On the root it prints each label's value in seconds, plus
// summary statistics over the final vector via montanaflynn/stats.
func (t *Tree) ReduceCriticalPath(values []float64, labels []string) ([]float64, error) {
	if len(values) != len(labels) {
		return nil, NewConfigError("reduce-critical-path: %d values but %d labels", len(values), len(labels))
	}

	max := make([]float64, len(values))
	for i, ch := range t.ChildChs {
		childVals, err := readFloats(ch, len(values))
		if err != nil {
			return nil, NewProtocolError("reduce-critical-path: reading from child %d: %v", i, err)
		}
		for j, v := range childVals {
			if v > max[j] {
				max[j] = v
			}
		}
	}

	acc := make([]float64, len(values))
	for j := range values {
		acc[j] = values[j] + max[j]
	}

	if !t.IsRoot() {
		if err := writeFloats(t.ParentCh, acc); err != nil {
			return nil, NewProtocolError("reduce-critical-path: writing to parent: %v", err)
		}
		return acc, nil
	}

	for j, label := range labels {
		fmt.Printf("%s = %g\n", label, acc[j]/1e9)
	}
	if len(acc) > 1 {
		if mean, err := stats.Mean(acc); err == nil {
			if median, err := stats.Median(acc); err == nil {
				if stddev, err := stats.StandardDeviation(acc); err == nil {
					fmt.Printf("critical-path summary: mean=%g median=%g stddev=%g (seconds: /1e9)\n",
						mean/1e9, median/1e9, stddev/1e9)
				}
			}
		}
	}
	return acc, nil
}

func writeFloats(ch network.Channel, values []float64) error {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return ch.Write(buf)
}

func readFloats(ch network.Channel, n int) ([]float64, error) {
	buf := make([]byte, 8*n)
	if err := ch.Read(buf); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}
