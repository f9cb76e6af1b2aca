// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package loader contains utilities for loading Datalog programs and fact
// documents from disk.
package loader

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/eval"
	"github.com/open-policy-agent/opalog/metrics"
	"github.com/open-policy-agent/opalog/storage"
)

// File extensions recognized by the loader.
const (
	DatalogExt = ".dl"
	JSONExt    = ".json"
	YAMLExt    = ".yaml"
	YMLExt     = ".yml"
)

// Result represents the result of successfully loading zero or more files.
type Result struct {
	Modules map[string]*DatalogFile
	Facts   map[ast.Predicate]*storage.Relation
}

// DatalogFile represents the result of loading a single Datalog source file.
type DatalogFile struct {
	Name   string
	Parsed *ast.Module
	Raw    []byte
}

func newResult() *Result {
	return &Result{
		Modules: map[string]*DatalogFile{},
		Facts:   map[ast.Predicate]*storage.Relation{},
	}
}

// ParsedModules returns the parsed modules sorted by file name.
func (l *Result) ParsedModules() []*ast.Module {
	names := make([]string, 0, len(l.Modules))
	for name := range l.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	modules := make([]*ast.Module, len(names))
	for i, name := range names {
		modules[i] = l.Modules[name].Parsed
	}
	return modules
}

// Program returns the program made of the loaded modules and facts.
func (l *Result) Program() (*eval.Program, error) {
	p, err := eval.NewProgram(l.ParsedModules()...)
	if err != nil {
		return nil, err
	}
	for pred, rel := range l.Facts {
		for _, t := range rel.Tuples() {
			if err := p.AddFact(ast.NewAtom(pred, t)); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Filter defines the interface for filtering files during loading. If the
// filter returns true, the file should be excluded from the result.
type Filter func(abspath string, info os.FileInfo, depth int) bool

// GlobExcludeName excludes files and directories whose names match the glob
// pattern at minDepth or greater. An invalid pattern excludes nothing.
func GlobExcludeName(pattern string, minDepth int) Filter {
	g, err := glob.Compile(pattern)
	return func(_ string, info os.FileInfo, depth int) bool {
		if err != nil {
			return false
		}
		return g.Match(info.Name()) && depth >= minDepth
	}
}

// All returns a Result object loaded (recursively) from the specified paths.
func All(paths []string) (*Result, error) {
	return Filtered(paths)
}

// AllDatalog returns a Result object loaded (recursively) with the Datalog
// source files from the specified paths.
func AllDatalog(paths []string) (*Result, error) {
	return Filtered(paths, func(_ string, info os.FileInfo, _ int) bool {
		return !info.IsDir() && !strings.HasSuffix(info.Name(), DatalogExt)
	})
}

// Filtered returns a Result object loaded (recursively) from the specified
// paths while applying the given filters. If any filter returns true, the
// file/directory is excluded.
func Filtered(paths []string, filters ...Filter) (*Result, error) {
	return NewFileLoader().Filtered(paths, filters...)
}

// FileLoader loads files from disk and records the time spent reading and
// parsing them.
type FileLoader struct {
	metrics metrics.Metrics
}

// NewFileLoader returns a FileLoader that records nothing.
func NewFileLoader() *FileLoader {
	return &FileLoader{metrics: metrics.NoOp()}
}

// WithMetrics sets the provider that receives the load_files and
// parse_module timers.
func (fl *FileLoader) WithMetrics(m metrics.Metrics) *FileLoader {
	fl.metrics = m
	return fl
}

// Filtered behaves like the package level Filtered.
func (fl *FileLoader) Filtered(paths []string, filters ...Filter) (*Result, error) {
	fl.metrics.Timer(metrics.LoadFiles).Start()
	defer fl.metrics.Timer(metrics.LoadFiles).Stop()

	return all(paths, filters, func(curr *Result, path string, depth int) error {

		bs, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		result, err := fl.loadKnownTypes(path, bs)
		if err != nil {
			if !isUnrecognizedFile(err) {
				return err
			}
			if depth > 0 {
				return nil
			}
			result, err = fl.loadFileForAnyType(path, bs)
			if err != nil {
				return err
			}
		}

		return curr.merge(path, result)
	})
}

// Datalog returns a DatalogFile object loaded from the given path.
func Datalog(path string) (*DatalogFile, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewFileLoader().loadDatalog(path, bs)
}

// CleanPath returns the normalized version of a path that can be used as an identifier.
func CleanPath(path string) string {
	return strings.Trim(path, "/")
}

func (l *Result) merge(path string, result any) error {
	switch result := result.(type) {
	case *DatalogFile:
		l.Modules[CleanPath(path)] = result
		return nil
	case map[ast.Predicate]*storage.Relation:
		mergeFacts(l.Facts, result)
		return nil
	default:
		return unsupportedDocumentType(path)
	}
}

func all(paths []string, filters []Filter, f func(*Result, string, int) error) (*Result, error) {
	errs := loaderErrors{}
	root := newResult()

	for _, path := range paths {
		allRec(path, filters, &errs, root, 0, f)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return root, nil
}

func allRec(path string, filters []Filter, errs *loaderErrors, loaded *Result, depth int, f func(*Result, string, int) error) {
	info, err := os.Stat(path)
	if err != nil {
		errs.add(err)
		return
	}

	if exclude(filters, path, info, depth) {
		return
	}

	if !info.IsDir() {
		if err := f(loaded, path, depth); err != nil {
			errs.add(err)
		}
		return
	}

	files, err := os.ReadDir(path)
	if err != nil {
		errs.add(err)
		return
	}

	for _, file := range files {
		allRec(filepath.Join(path, file.Name()), filters, errs, loaded, depth+1, f)
	}
}

func exclude(filters []Filter, path string, info os.FileInfo, depth int) bool {
	for _, f := range filters {
		if f(path, info, depth) {
			return true
		}
	}
	return false
}

func (fl *FileLoader) loadKnownTypes(path string, bs []byte) (any, error) {
	switch filepath.Ext(path) {
	case DatalogExt:
		return fl.loadDatalog(path, bs)
	case JSONExt:
		return loadJSON(path, bs)
	case YAMLExt, YMLExt:
		return loadYAML(path, bs)
	}
	return nil, unrecognizedFile(path)
}

func (fl *FileLoader) loadFileForAnyType(path string, bs []byte) (any, error) {
	module, err := fl.loadDatalog(path, bs)
	if err == nil {
		return module, nil
	}
	facts, err := loadJSON(path, bs)
	if err == nil {
		return facts, nil
	}
	facts, err = loadYAML(path, bs)
	if err == nil {
		return facts, nil
	}
	return nil, unrecognizedFile(path)
}

func (fl *FileLoader) loadDatalog(path string, bs []byte) (*DatalogFile, error) {
	fl.metrics.Timer(metrics.ParseModule).Start()
	module, err := ast.ParseModule(path, string(bs), nil)
	fl.metrics.Timer(metrics.ParseModule).Stop()
	if err != nil {
		return nil, err
	}
	if module == nil || len(module.Facts)+len(module.Rules)+len(module.Queries) == 0 {
		return nil, emptyModuleError(path)
	}
	result := &DatalogFile{
		Name:   path,
		Parsed: module,
		Raw:    bs,
	}
	return result, nil
}
