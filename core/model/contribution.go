package model

import (
	"math"
	"sort"
)

// SortContributions orders c by decreasing |Weight|, ties broken by feature
// name so the order is deterministic.
func SortContributions(c []Contribution) {
	sort.SliceStable(c, func(i, j int) bool {
		ai, aj := math.Abs(c[i].Weight), math.Abs(c[j].Weight)
		if ai != aj {
			return ai > aj
		}
		return c[i].Feature < c[j].Feature
	})
}
