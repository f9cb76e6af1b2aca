// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package storage

import (
	"fmt"
	"sort"

	"github.com/open-policy-agent/opalog/ast"
)

// Database maps predicates to relations. Relations are created on first
// use.
type Database struct {
	relations map[ast.Predicate]*Relation
}

// NewDatabase returns an empty database.
func NewDatabase() *Database {
	return &Database{relations: map[ast.Predicate]*Relation{}}
}

// NewDatabaseFrom returns a database holding copies of the relations.
func NewDatabaseFrom(relations map[ast.Predicate]*Relation) *Database {
	db := NewDatabase()
	for p, r := range relations {
		checkPredicateArity(p, r)
		db.relations[p] = r.Copy()
	}
	return db
}

// Relation returns the relation for p, creating an empty one if necessary.
func (db *Database) Relation(p ast.Predicate) *Relation {
	r, ok := db.relations[p]
	if !ok {
		r = NewRelation(p.Arity)
		db.relations[p] = r
	}
	return r
}

// Get returns the relation for p if one exists.
func (db *Database) Get(p ast.Predicate) (*Relation, bool) {
	r, ok := db.relations[p]
	return r, ok
}

// Put replaces the relation for p.
func (db *Database) Put(p ast.Predicate, r *Relation) {
	checkPredicateArity(p, r)
	db.relations[p] = r
}

// Delete removes the relation for p.
func (db *Database) Delete(p ast.Predicate) {
	delete(db.relations, p)
}

// AddFact inserts the tuple of a ground atom. AddFact returns true if the
// relation grew.
func (db *Database) AddFact(a *ast.Atom) (bool, error) {
	if !a.IsGround() {
		return false, fmt.Errorf("fact %v is not ground", a)
	}
	return db.Relation(a.Predicate).Add(a.Tuple), nil
}

// Merge adds all relations of other. Merge returns true if any relation
// grew.
func (db *Database) Merge(other *Database) bool {
	var grew bool
	for p, r := range other.relations {
		if db.Relation(p).AddAll(r) {
			grew = true
		}
	}
	return grew
}

// Predicates returns the predicates with relations in the database, sorted
// by symbol and arity.
func (db *Database) Predicates() []ast.Predicate {
	ps := make([]ast.Predicate, 0, len(db.relations))
	for p := range db.relations {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Symbol != ps[j].Symbol {
			return ps[i].Symbol < ps[j].Symbol
		}
		return ps[i].Arity < ps[j].Arity
	})
	return ps
}

// Size returns the total number of tuples in the database.
func (db *Database) Size() int {
	var n int
	for _, r := range db.relations {
		n += r.Size()
	}
	return n
}

// Copy returns a deep copy of the database. Tuples are shared.
func (db *Database) Copy() *Database {
	return NewDatabaseFrom(db.relations)
}

// Relations returns the underlying map. Callers must not modify it.
func (db *Database) Relations() map[ast.Predicate]*Relation {
	return db.relations
}

func checkPredicateArity(p ast.Predicate, r *Relation) {
	if p.Arity != r.Arity() {
		panic(fmt.Sprintf("arity mismatch: relation of arity %d for %v", r.Arity(), p))
	}
}
