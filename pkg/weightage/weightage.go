// Package weightage converts per-opinion vote tallies into a percentage
// breakdown over a question's options.
package weightage

// Tally is the vote count of a single opinion.
type Tally struct {
	Option    string
	Upvotes   int
	Downvotes int
}

// Result is the share of one option.
type Result struct {
	Option     string  `json:"option"`
	Percentage float64 `json:"percentage"`
}

// Weightages sums upvotes minus downvotes per option. Options with no
// opinions are absent from the map.
func Weightages(tallies []Tally) map[string]int {
	weights := make(map[string]int)
	for _, t := range tallies {
		weights[t.Option] += t.Upvotes - t.Downvotes
	}
	return weights
}

// Percentages returns one Result per option, in the order of options.
//
// Weightages are shifted by |max|+|min| so that negative totals still
// produce a usable distribution, then divided by their sum. Options
// without opinions get 0. Results are not rounded, so their sum may
// differ from 100 by floating-point error.
func Percentages(options []string, tallies []Tally) []Result {
	weights := Weightages(tallies)
	shares := make(map[string]float64, len(weights))
	if len(weights) > 0 {
		first := true
		var maxW, minW int
		for _, w := range weights {
			if first || w > maxW {
				maxW = w
			}
			if first || w < minW {
				minW = w
			}
			first = false
		}
		shift := abs(maxW) + abs(minW)

		sum := 0
		for _, w := range weights {
			sum += w + shift
		}
		for option, w := range weights {
			shares[option] = percentage(w+shift, sum, len(weights))
		}
	}

	out := make([]Result, 0, len(options))
	for _, option := range options {
		out = append(out, Result{Option: option, Percentage: shares[option]})
	}
	return out
}

// percentage computes value/sum*100. A value equal to a non-zero sum is
// exactly 100; a zero sum means every option tied at the baseline and the
// share is split evenly.
func percentage(value, sum, n int) float64 {
	switch {
	case sum == 0:
		return 100 / float64(n)
	case value == sum:
		return 100
	default:
		return float64(value) / float64(sum) * 100
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
