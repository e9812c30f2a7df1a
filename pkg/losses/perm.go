package losses

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Solver finds, for one n_src × n_src cost matrix, the source-to-estimate
// assignment minimizing the mean of the selected entries. perm[i] is the
// estimate index assigned to reference i; the returned total is the mean
// cost under that assignment.
type Solver interface {
	Best(cost mat.Matrix) (perm []int, total float64, err error)
}

// exhaustiveThreshold is the largest source count for which permutations
// are enumerated outright. Enumeration costs O(n_src! · n_src), which is
// the dominant latency driver of a PIT evaluation; above the threshold
// the Hungarian solver takes over with the same objective.
const exhaustiveThreshold = 8

// ExhaustiveSolver enumerates all n_src! permutations in lexicographic
// order and keeps the first one achieving the minimum, which makes tie
// handling deterministic.
type ExhaustiveSolver struct{}

var _ Solver = ExhaustiveSolver{}

func (ExhaustiveSolver) Best(cost mat.Matrix) ([]int, float64, error) {
	n, err := checkCostMatrix(cost)
	if err != nil {
		return nil, 0, err
	}
	if n == 1 {
		return []int{0}, cost.At(0, 0), nil
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	best := make([]int, n)
	copy(best, perm)
	bestTotal := permMeanCost(cost, perm)
	for nextPermutation(perm) {
		if total := permMeanCost(cost, perm); total < bestTotal {
			bestTotal = total
			copy(best, perm)
		}
	}
	return best, bestTotal, nil
}

// HungarianSolver solves the assignment with the Kuhn-Munkres algorithm
// in O(n³). It produces the same objective value as ExhaustiveSolver and
// can be swapped in behind the PIT wrapper for large source counts.
type HungarianSolver struct{}

var _ Solver = HungarianSolver{}

func (HungarianSolver) Best(cost mat.Matrix) ([]int, float64, error) {
	n, err := checkCostMatrix(cost)
	if err != nil {
		return nil, 0, err
	}
	perm := hungarian(cost, n)
	return perm, permMeanCost(cost, perm), nil
}

// BestPermutations runs the solver on each batch element independently.
// A nil solver selects ExhaustiveSolver up to 8 sources and
// HungarianSolver beyond.
func BestPermutations(costs []*mat.Dense, s Solver) (perms [][]int, totals []float64, err error) {
	if len(costs) == 0 {
		return nil, nil, fmt.Errorf("no cost matrices given")
	}
	if s == nil {
		n, _ := costs[0].Dims()
		if n <= exhaustiveThreshold {
			s = ExhaustiveSolver{}
		} else {
			s = HungarianSolver{}
		}
	}
	perms = make([][]int, len(costs))
	totals = make([]float64, len(costs))
	for b, cost := range costs {
		perm, total, err := s.Best(cost)
		if err != nil {
			return nil, nil, fmt.Errorf("batch element %d: %w", b, err)
		}
		perms[b] = perm
		totals[b] = total
	}
	return perms, totals, nil
}

func checkCostMatrix(cost mat.Matrix) (int, error) {
	r, c := cost.Dims()
	if r != c {
		return 0, fmt.Errorf("cost matrix must be square, got %dx%d", r, c)
	}
	if r == 0 {
		return 0, fmt.Errorf("cost matrix is empty")
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(cost.At(i, j)) {
				return 0, fmt.Errorf("cost matrix contains NaN at (%d, %d)", i, j)
			}
		}
	}
	return r, nil
}

func permMeanCost(cost mat.Matrix, perm []int) float64 {
	var sum float64
	for i, j := range perm {
		sum += cost.At(i, j)
	}
	return sum / float64(len(perm))
}

// nextPermutation advances p to its lexicographic successor, returning
// false once p is the last permutation.
func nextPermutation(p []int) bool {
	i := len(p) - 2
	for i >= 0 && p[i] >= p[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(p) - 1
	for p[j] <= p[i] {
		j--
	}
	p[i], p[j] = p[j], p[i]
	for l, r := i+1, len(p)-1; l < r; l, r = l+1, r-1 {
		p[l], p[r] = p[r], p[l]
	}
	return true
}

// hungarian implements the potentials form of Kuhn-Munkres over a square
// cost matrix, returning the column assigned to each row.
func hungarian(cost mat.Matrix, n int) []int {
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	matchCol := make([]int, n+1) // row matched to each column, 0 = free
	way := make([]int, n+1)

	for row := 1; row <= n; row++ {
		matchCol[0] = row
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := matchCol[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[matchCol[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if matchCol[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			matchCol[j0] = matchCol[j1]
			j0 = j1
		}
	}

	perm := make([]int, n)
	for j := 1; j <= n; j++ {
		if matchCol[j] != 0 {
			perm[matchCol[j]-1] = j - 1
		}
	}
	return perm
}
