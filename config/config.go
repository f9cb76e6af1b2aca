// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package config implements engine configuration file parsing and validation.
package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/open-policy-agent/opalog/logging"
	"github.com/open-policy-agent/opalog/util"
)

// Config represents the configuration the engine can be started with. Fields
// absent from a configuration file keep their default values.
type Config struct {
	// MagicSets enables the magic-set rewrite before evaluation.
	MagicSets bool `json:"magic_sets"`

	// RelaxedArithmetic lets an arithmetic builtin limit its third operand
	// once the other two are limited.
	RelaxedArithmetic bool `json:"relaxed_arithmetic"`

	// MaxIterations bounds the number of fixpoint passes per query. Zero
	// removes the bound.
	MaxIterations int `json:"max_iterations"`

	// RewriteCacheSize is the number of magic-set rewrites kept in memory.
	// Zero disables the cache.
	RewriteCacheSize int `json:"rewrite_cache_size"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

const (
	defaultMaxIterations    = 10000
	defaultRewriteCacheSize = 128
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		MagicSets:        true,
		MaxIterations:    defaultMaxIterations,
		RewriteCacheSize: defaultRewriteCacheSize,
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
	}
}

// ParseConfig returns a valid Config object. Keys absent from raw keep their
// default values and keys set to zero stay zero. The raw bytes may be YAML or
// JSON.
func ParseConfig(raw []byte) (*Config, error) {
	result := Default()
	if len(raw) > 0 {
		if err := util.Unmarshal(raw, result); err != nil {
			return nil, errors.Wrap(err, "config")
		}
	}
	return result, result.validateAndInjectDefaults()
}

// ParseConfigFile reads and parses the configuration file at path.
func ParseConfigFile(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config %v", path)
	}
	return ParseConfig(bs)
}

// Level returns the configured log level.
func (c *Config) Level() logging.Level {
	lvl, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.Info
	}
	return lvl
}

func (c *Config) validateAndInjectDefaults() error {

	if c.MaxIterations < 0 {
		return fmt.Errorf("config: max_iterations must not be negative: %d", c.MaxIterations)
	}

	if c.RewriteCacheSize < 0 {
		return fmt.Errorf("config: rewrite_cache_size must not be negative: %d", c.RewriteCacheSize)
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config")
	}

	switch c.LogFormat {
	case "":
		c.LogFormat = defaultLogFormat
	case "text", "json", "json-pretty":
	default:
		return fmt.Errorf("config: invalid log_format: %q", c.LogFormat)
	}

	return nil
}
