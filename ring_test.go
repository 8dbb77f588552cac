package spawntree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/llnl/spawntree/network"
	"github.com/stretchr/testify/require"
)

func addrN(i int) string { return fmt.Sprintf("addr-%d", i) }

func TestRingScanFullParticipationWrapsAround(t *testing.T) {
	const n = 8
	trees := wireTree(t, n, 2)

	results := make([]*network.Map, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			own := network.NewMap()
			own.Set(keyLeft, addrN(i))
			own.Set(keyRight, addrN(i))
			out, err := trees[i].RingScan(own)
			require.NoError(t, err)
			results[i] = out
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		left, _ := results[i].Get(keyLeft)
		right, _ := results[i].Get(keyRight)
		require.Equal(t, addrN((i-1+n)%n), left, "rank %d LEFT", i)
		require.Equal(t, addrN((i+1)%n), right, "rank %d RIGHT", i)
	}
}

func TestRingScanSkipsNonContributingRanks(t *testing.T) {
	const n = 8
	trees := wireTree(t, n, 2)

	// Ranks 2 and 5 contribute nothing; the rest form a ring in
	// ascending order among themselves.
	skip := map[int]bool{2: true, 5: true}
	contributing := []int{}
	for i := 0; i < n; i++ {
		if !skip[i] {
			contributing = append(contributing, i)
		}
	}
	posOf := make(map[int]int)
	for pos, rank := range contributing {
		posOf[rank] = pos
	}

	results := make([]*network.Map, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			own := network.NewMap()
			if !skip[i] {
				own.Set(keyLeft, addrN(i))
				own.Set(keyRight, addrN(i))
			}
			out, err := trees[i].RingScan(own)
			require.NoError(t, err)
			results[i] = out
		}()
	}
	wg.Wait()

	m := len(contributing)
	for _, i := range contributing {
		left, _ := results[i].Get(keyLeft)
		right, _ := results[i].Get(keyRight)
		pos := posOf[i]
		wantLeft := addrN(contributing[(pos-1+m)%m])
		wantRight := addrN(contributing[(pos+1)%m])
		require.Equal(t, wantLeft, left, "rank %d LEFT", i)
		require.Equal(t, wantRight, right, "rank %d RIGHT", i)
	}
}
