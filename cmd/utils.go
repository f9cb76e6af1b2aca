// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cmd

import (
	"io"

	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/ast"
	"github.com/open-policy-agent/opalog/config"
	"github.com/open-policy-agent/opalog/eval"
	"github.com/open-policy-agent/opalog/loader"
	"github.com/open-policy-agent/opalog/logging"
	"github.com/open-policy-agent/opalog/metrics"
)

// loadProgram loads the files at paths that pass the filter. If query is
// set it replaces the queries of the loaded files.
func loadProgram(paths []string, f loaderFilter, query string) (*eval.Program, error) {
	return loadProgramWithMetrics(paths, f, query, metrics.NoOp())
}

// loadProgramWithMetrics is loadProgram recording load and parse timers to m.
func loadProgramWithMetrics(paths []string, f loaderFilter, query string, m metrics.Metrics) (*eval.Program, error) {
	result, err := loader.NewFileLoader().WithMetrics(m).Filtered(paths, f.Apply)
	if err != nil {
		return nil, err
	}

	p, err := result.Program()
	if err != nil {
		return nil, err
	}

	if query != "" {
		q, err := ast.ParseQuery(query, nil)
		if err != nil {
			return nil, errors.Wrap(err, "query")
		}
		p.Queries = []*ast.Query{q}
	}

	return p, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	c, err := config.ParseConfigFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %v", path)
	}
	return c, nil
}

func newLogger(c *config.Config, w io.Writer) (logging.Logger, error) {
	logger := logging.New()
	logger.SetOutput(w)
	logger.SetLevel(c.Level())
	if err := logger.SetFormatter(c.LogFormat); err != nil {
		return nil, err
	}
	return logger, nil
}
