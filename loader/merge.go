// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package loader

import (
	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/storage"
)

// mergeFacts adds the tuples of b to a. Relations for predicates missing
// from a are copied.
func mergeFacts(a, b map[ast.Predicate]*storage.Relation) {
	for p, rel := range b {
		exist, ok := a[p]
		if !ok {
			a[p] = rel.Copy()
			continue
		}
		exist.AddAll(rel)
	}
}
