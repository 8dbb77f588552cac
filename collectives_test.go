package spawntree

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/llnl/spawntree/network"
	"github.com/stretchr/testify/require"
)

// wireTree builds every rank's Tree topology via NewTree and connects real
// in-process Channels (network.KindLocal) along every parent/child edge,
// driving multi-node protocol tests without real sockets (see
// network/local_test.go).
func wireTree(t *testing.T, ranks, degree int) []*Tree {
	t.Helper()

	trees := make([]*Tree, ranks)
	for r := 0; r < ranks; r++ {
		tr, err := NewTree(r, ranks, degree)
		require.NoError(t, err)
		trees[r] = tr
	}

	var wg sync.WaitGroup
	for _, tr := range trees {
		for i, childRank := range tr.ChildRanks {
			tr, i, childRank := tr, i, childRank
			ep, err := network.Open(network.KindLocal)
			require.NoError(t, err)

			wg.Add(2)
			go func() {
				defer wg.Done()
				ch, err := ep.Accept()
				require.NoError(t, err)
				tr.ChildChs[i] = ch
			}()
			go func() {
				defer wg.Done()
				ch, err := network.Connect(ep.Name())
				require.NoError(t, err)
				trees[childRank].ParentCh = ch
			}()
		}
	}
	wg.Wait()

	t.Cleanup(func() {
		for _, tr := range trees {
			tr.Teardown()
		}
	})

	return trees
}

func TestBarrierIsTotal(t *testing.T) {
	trees := wireTree(t, 7, 2)

	reached := make([]int32, len(trees))
	var mu sync.Mutex
	observedSecondEarly := false

	var wg sync.WaitGroup
	for i, tr := range trees {
		i, tr := i, tr
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, tr.SignalToRoot())

			mu.Lock()
			reached[i] = 1
			allReached := true
			for _, v := range reached {
				if v == 0 {
					allReached = false
				}
			}
			if !allReached {
				observedSecondEarly = true
			}
			mu.Unlock()

			require.NoError(t, tr.SignalFromRoot())
		}()
	}
	wg.Wait()

	require.False(t, observedSecondEarly, "some process reached signal-from-root before every process reached signal-to-root")
}

func TestAllgatherMapGivesEveryRankTheSameKeys(t *testing.T) {
	const n = 6
	trees := wireTree(t, n, 3)

	results := make([]*network.Map, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := network.NewMap()
			m.Set(keyFor(i), valFor(i))
			merged, err := trees[i].AllgatherMap(m)
			require.NoError(t, err)
			results[i] = merged
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.Len(t, results[i].Keys(), n)
		v, ok := results[i].Get(keyFor(i))
		require.True(t, ok)
		require.Equal(t, valFor(i), v)
	}

	// Every node must see the same set of keys.
	want := results[0].Keys()
	sort.Strings(want)
	for i := 1; i < n; i++ {
		got := results[i].Keys()
		sort.Strings(got)
		require.Equal(t, want, got)
	}
}

func keyFor(i int) string { return "k" + itoa(i) }
func valFor(i int) string { return "v" + itoa(i) }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

func TestReduceCriticalPathSevenProcessBinaryTree(t *testing.T) {
	trees := wireTree(t, 7, 2)

	results := make([][]float64, 7)
	var wg sync.WaitGroup
	for r := 0; r < 7; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := trees[r].ReduceCriticalPath([]float64{float64(r)}, []string{"total"})
			require.NoError(t, err)
			results[r] = out
		}()
	}
	wg.Wait()

	// Tree: 0's children {1,2}; 1's children {3,4}; 2's children {5,6}.
	// Leaves (3,4,5,6) report their own rank unchanged.
	require.Equal(t, []float64{3}, results[3])
	require.Equal(t, []float64{4}, results[4])
	require.Equal(t, []float64{5}, results[5])
	require.Equal(t, []float64{6}, results[6])
	// rank 1: max(3,4)=4, +1 = 5. rank 2: max(5,6)=6, +2 = 8.
	require.Equal(t, []float64{5}, results[1])
	require.Equal(t, []float64{8}, results[2])
	// root: max(5,8)=8, +0 = 8.
	require.Equal(t, []float64{8}, results[0])
}

func TestSingleNodeBarrierCompletes(t *testing.T) {
	// A lone root with no children should complete both waves immediately.
	trees := wireTree(t, 1, 2)
	done := make(chan error, 1)
	go func() {
		done <- trees[0].Barrier()
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("single-node barrier did not complete")
	}
}
