package spawntree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildAll constructs every rank's Tree for a given (ranks, degree) pair.
func buildAll(t *testing.T, ranks, degree int) []*Tree {
	t.Helper()
	trees := make([]*Tree, ranks)
	for r := 0; r < ranks; r++ {
		tr, err := NewTree(r, ranks, degree)
		require.NoError(t, err)
		trees[r] = tr
	}
	return trees
}

func TestTopologyDisjointCoverAndUniqueParent(t *testing.T) {
	degrees := []int{2, 3, 4, 8}
	sizes := []int{1, 2, 3, 7, 8, 9, 64, 1000}

	for _, k := range degrees {
		for _, n := range sizes {
			trees := buildAll(t, n, k)

			covered := make([]int, n)
			for _, tr := range trees {
				for _, c := range tr.ChildRanks {
					covered[c]++
				}
			}
			// every rank but 0 must be claimed by exactly one parent
			for r := 1; r < n; r++ {
				assert.Equalf(t, 1, covered[r], "rank %d (n=%d k=%d) covered %d times", r, n, k, covered[r])
			}
			assert.Equal(t, 0, covered[0], "root must not be any child")

			// cross-check against the independent ParentRank computation
			for r := 1; r < n; r++ {
				parent, hasParent, err := ParentRank(r, n, k)
				require.NoError(t, err)
				assert.True(t, hasParent)

				found := false
				for _, c := range trees[parent].ChildRanks {
					if c == r {
						found = true
					}
				}
				assert.Truef(t, found, "ParentRank(%d) = %d but that rank's tree doesn't list %d as a child", r, parent, r)
			}

			_, hasParent, err := ParentRank(0, n, k)
			require.NoError(t, err)
			assert.False(t, hasParent)
		}
	}
}

func TestTopologyDegreeBelowTwoIsConfigError(t *testing.T) {
	_, err := NewTree(0, 4, 1)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestTopologyZeroRanksIsConfigError(t *testing.T) {
	_, err := NewTree(0, 0, 2)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestTopologySingleRankHasNoChildren(t *testing.T) {
	tr, err := NewTree(0, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Children())
	assert.True(t, tr.IsRoot())
}

// depth returns the maximum number of edges from root to any rank.
func depth(ranks, degree int) int {
	levelStart := 0
	levelSize := 1
	d := 0
	for levelStart < ranks {
		levelStart += levelSize
		levelSize *= degree
		if levelStart < ranks {
			d++
		}
	}
	return d
}

func TestTopologyDepthBound(t *testing.T) {
	for _, k := range []int{2, 3, 4, 8} {
		for _, n := range []int{1, 2, 5, 100, 10000} {
			bound := int(math.Ceil(logBase(float64(k), float64(n)*float64(k-1)+1)))
			assert.LessOrEqualf(t, depth(n, k), bound, "n=%d k=%d", n, k)
		}
	}
}

func logBase(base, x float64) float64 {
	return math.Log(x) / math.Log(base)
}
