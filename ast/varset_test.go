// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ast

import "testing"

func TestVarSet(t *testing.T) {
	a := NewVarSet("X", "Y")
	b := NewVarSet("Y", "Z")

	if !a.Contains("X") || a.Contains("Z") {
		t.Fatalf("Unexpected contents: %v", a)
	}
	if !a.ContainsAll([]Var{"Y", "X"}) || a.ContainsAll([]Var{"X", "Z"}) {
		t.Fatalf("Unexpected ContainsAll result for %v", a)
	}
	if d := a.Diff(b); !d.Equal(NewVarSet("X")) {
		t.Fatalf("Expected [?X] but got %v", d)
	}
	if i := a.Intersect(b); !i.Equal(NewVarSet("Y")) {
		t.Fatalf("Expected [?Y] but got %v", i)
	}

	cpy := a.Copy()
	cpy.Update(b)
	if cpy.String() != "[?X ?Y ?Z]" {
		t.Fatalf("Expected [?X ?Y ?Z] but got %v", cpy)
	}
	if a.String() != "[?X ?Y]" {
		t.Fatalf("Copy was not independent: %v", a)
	}
	if a.Equal(cpy) || !a.Equal(NewVarSet("Y", "X")) {
		t.Fatal("Unexpected Equal result")
	}
}
