package losses

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestExhaustiveSolver(t *testing.T) {
	t.Run("picks the off-diagonal assignment", func(t *testing.T) {
		cost := mat.NewDense(2, 2, []float64{
			10, 1,
			1, 10,
		})
		perm, total, err := ExhaustiveSolver{}.Best(cost)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 0}, perm)
		assert.Equal(t, 1.0, total)
	})

	t.Run("single source returns identity and sole entry", func(t *testing.T) {
		cost := mat.NewDense(1, 1, []float64{3.5})
		perm, total, err := ExhaustiveSolver{}.Best(cost)
		require.NoError(t, err)
		assert.Equal(t, []int{0}, perm)
		assert.Equal(t, 3.5, total)
	})

	t.Run("deterministic under ties", func(t *testing.T) {
		cost := mat.NewDense(3, 3, []float64{
			1, 1, 1,
			1, 1, 1,
			1, 1, 1,
		})
		first, _, err := ExhaustiveSolver{}.Best(cost)
		require.NoError(t, err)
		// All permutations tie; the lexicographically first must win,
		// every time.
		assert.Equal(t, []int{0, 1, 2}, first)
		for i := 0; i < 10; i++ {
			perm, _, err := ExhaustiveSolver{}.Best(cost)
			require.NoError(t, err)
			assert.Equal(t, first, perm)
		}
	})

	t.Run("non-square matrix rejected", func(t *testing.T) {
		_, _, err := ExhaustiveSolver{}.Best(mat.NewDense(2, 3, nil))
		assert.ErrorContains(t, err, "square")
	})

	t.Run("NaN rejected", func(t *testing.T) {
		cost := mat.NewDense(2, 2, []float64{1, math.NaN(), 3, 4})
		_, _, err := ExhaustiveSolver{}.Best(cost)
		assert.ErrorContains(t, err, "NaN")
	})
}

func TestHungarianMatchesExhaustive(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for _, n := range []int{1, 2, 3, 4, 5, 6} {
		t.Run(fmt.Sprintf("n-%d", n), func(t *testing.T) {
			for trial := 0; trial < 20; trial++ {
				data := make([]float64, n*n)
				for i := range data {
					data[i] = rng.NormFloat64()
				}
				cost := mat.NewDense(n, n, data)

				_, exhaustiveTotal, err := ExhaustiveSolver{}.Best(cost)
				require.NoError(t, err)
				_, hungarianTotal, err := HungarianSolver{}.Best(cost)
				require.NoError(t, err)
				assert.InDelta(t, exhaustiveTotal, hungarianTotal, 1e-9)
			}
		})
	}
}

func TestBestPermutationsPerElement(t *testing.T) {
	costs := []*mat.Dense{
		mat.NewDense(2, 2, []float64{0, 5, 5, 0}),
		mat.NewDense(2, 2, []float64{5, 0, 0, 5}),
	}
	perms, totals, err := BestPermutations(costs, nil)
	require.NoError(t, err)
	// Each element is solved against its own matrix only.
	assert.Equal(t, []int{0, 1}, perms[0])
	assert.Equal(t, []int{1, 0}, perms[1])
	assert.Equal(t, []float64{0, 0}, totals)
}

func TestBestPermutationsSolverSelection(t *testing.T) {
	// Above the enumeration threshold the default must not attempt n!
	// permutations; with n = 12 that would never finish.
	n := 12
	rng := rand.New(rand.NewSource(29))
	data := make([]float64, n*n)
	for i := range data {
		data[i] = rng.Float64()
	}
	perms, _, err := BestPermutations([]*mat.Dense{mat.NewDense(n, n, data)}, nil)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, j := range perms[0] {
		seen[j] = true
	}
	assert.Len(t, seen, n, "assignment must be a bijection")
}
