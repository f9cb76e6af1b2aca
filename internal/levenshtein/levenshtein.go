// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package levenshtein suggests names close to a misspelled one.
package levenshtein

import (
	"iter"
	"slices"

	"github.com/agnivade/levenshtein"
)

// Closest returns the candidates at the smallest edit distance from a,
// provided that distance does not exceed maxDistance. The result is sorted
// and free of duplicates.
func Closest(maxDistance int, a string, candidates iter.Seq[string]) []string {
	best := maxDistance
	var result []string
	for c := range candidates {
		d := levenshtein.ComputeDistance(a, c)
		switch {
		case d < best:
			best = d
			result = []string{c}
		case d == best:
			result = append(result, c)
		}
	}
	slices.Sort(result)
	return slices.Compact(result)
}
