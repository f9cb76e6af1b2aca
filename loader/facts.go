// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package loader

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/storage"
	"github.com/open-policy-agent/opalog/util"
)

// factsDocument is the layout of JSON and YAML fact files:
//
//	facts:
//	  edge:
//	    - [a, b]
//	    - [b, c]
//
// Each row is the tuple of one fact. Rows of different lengths define
// predicates of different arity.
type factsDocument struct {
	Facts map[string][][]any `json:"facts" yaml:"facts"`
}

func loadJSON(path string, bs []byte) (map[ast.Predicate]*storage.Relation, error) {
	var doc factsDocument
	if err := util.UnmarshalJSON(bs, &doc); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return doc.relations(path)
}

func loadYAML(path string, bs []byte) (map[ast.Predicate]*storage.Relation, error) {
	var doc factsDocument
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, errors.Wrapf(err, "%v: error decoding YAML", path)
	}
	return doc.relations(path)
}

func (doc factsDocument) relations(path string) (map[ast.Predicate]*storage.Relation, error) {

	if doc.Facts == nil {
		return nil, unsupportedDocumentType(path)
	}

	symbols := make([]string, 0, len(doc.Facts))
	for s := range doc.Facts {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	result := map[ast.Predicate]*storage.Relation{}

	for _, s := range symbols {
		for i, row := range doc.Facts[s] {
			t := make(ast.Tuple, len(row))
			for j, x := range row {
				c, err := constant(x)
				if err != nil {
					return nil, errors.Wrapf(err, "%v: %v row %d", path, s, i)
				}
				t[j] = c
			}
			p := ast.Predicate{Symbol: s, Arity: len(t)}
			rel, ok := result[p]
			if !ok {
				rel = storage.NewRelation(p.Arity)
				result[p] = rel
			}
			rel.Add(t)
		}
	}

	return result, nil
}

func constant(x any) (ast.Constant, error) {
	if n, ok := x.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return ast.Integer(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return ast.Double(f), nil
	}
	return ast.NewConstant(x)
}
