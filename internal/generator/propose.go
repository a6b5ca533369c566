package generator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

const aminoAcids = "ACDEFGHIKLMNPQRSTVWY"

type randSource = *rand.Rand

// iterationRand derives the random stream of one iteration from (seed, iteration),
// so iteration k draws the same numbers whether or not the run was restarted.
func iterationRand(seed int64, iteration int) randSource {
	return rand.New(rand.NewPCG(uint64(seed), uint64(iteration)))
}

func mutationAlphabet(omit string) []byte {
	out := make([]byte, 0, len(aminoAcids))
	for i := 0; i < len(aminoAcids); i++ {
		if !strings.ContainsRune(omit, rune(aminoAcids[i])) {
			out = append(out, aminoAcids[i])
		}
	}
	return out
}

// #region mutate
// mutate substitutes n distinct positions drawn from positions (0-based) and
// returns the new sequence with mutation names like "S31Y" (1-based).
// Positions outside seq are ignored. With no usable position seq is returned unchanged.
func mutate(rng randSource, seq string, positions []int, n int, alphabet []byte) (string, []string) {
	usable := make([]int, 0, len(positions))
	for _, p := range positions {
		if p >= 0 && p < len(seq) {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return seq, nil
	}
	if n > len(usable) {
		n = len(usable)
	}

	perm := rng.Perm(len(usable))
	picked := make([]int, n)
	for i := 0; i < n; i++ {
		picked[i] = usable[perm[i]]
	}
	sort.Ints(picked)

	out := []byte(seq)
	names := make([]string, 0, n)
	for _, pos := range picked {
		old := out[pos]
		choices := make([]byte, 0, len(alphabet))
		for _, aa := range alphabet {
			if aa != old {
				choices = append(choices, aa)
			}
		}
		aa := choices[rng.IntN(len(choices))]
		out[pos] = aa
		names = append(names, fmt.Sprintf("%c%d%c", old, pos+1, aa))
	}
	return string(out), names
}

// #endregion mutate

// #region fitness
// fitness is the weighted sum of predictor metrics. A weighted metric missing
// from the prediction is an error.
func fitness(m binder.Metrics, weights map[string]float64) (float64, error) {
	names := make([]string, 0, len(weights))
	for k := range weights {
		names = append(names, k)
	}
	sort.Strings(names)

	var sum float64
	for _, k := range names {
		v, ok := m.Get(k)
		if !ok {
			return 0, fmt.Errorf("prediction lacks weighted metric %s", k)
		}
		sum += weights[k] * v
	}
	return sum, nil
}

// #endregion fitness

// #region accept
// accept reports whether a proposal with fitness next replaces current.
// strict: only improvements. metropolis: worse proposals pass with
// probability exp((next-current)/temperature).
func accept(policy string, rng randSource, next, current, temperature float64) bool {
	if next > current {
		return true
	}
	if policy != "metropolis" || temperature <= 0 || math.IsInf(current, -1) {
		return false
	}
	return rng.Float64() < math.Exp((next-current)/temperature)
}

// #endregion accept
