// Package config loads and validates the pipeline's run configuration:
// a flat, JSON-backed option map merged from one or more files, plus a
// small set of named validators, modeled on original_source/workflow/config.py.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/matthutchison/cryoempipe/cmn/nlog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Validator reports whether a config value is acceptable.
type Validator func(v any) bool

// Config is the pipeline's run configuration: a flat option map merged,
// last-file-wins, from every path passed to Load.
type Config struct {
	Options    map[string]any
	validators map[string][]Validator
	path       string
}

// New constructs an empty Config with the pipeline's default validators
// already registered.
func New() *Config {
	c := &Config{
		Options:    make(map[string]any),
		validators: make(map[string][]Validator),
	}
	c.registerDefaults()
	return c
}

// Load reads and merges one or more JSON config files in order; values
// from a later path override values from an earlier one.
func (c *Config) Load(paths ...string) error {
	for _, path := range paths {
		merged, err := loadFile(path)
		if err != nil {
			return err
		}
		for k, v := range merged {
			c.Options[k] = v
		}
		c.path = path
	}
	return nil
}

func loadFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return out, nil
}

// Save writes the current option map to path as JSON. A pre-existing
// file is refused unless force is set.
func (c *Config) Save(path string, force bool) error {
	if path == "" {
		path = c.path
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("config save file %s exists", path)
		}
	}
	raw, err := json.MarshalIndent(c.Options, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// AddValidator registers an additional validator for key, alongside any
// defaults already present.
func (c *Config) AddValidator(key string, v Validator) {
	c.validators[key] = append(c.validators[key], v)
}

// Validate runs every validator registered for key against its current
// value. A key with no value is treated as valid whatever validators it
// has - an option simply not present in this run's config.
func (c *Config) Validate(key string) bool {
	v, present := c.Options[key]
	for _, validator := range c.validators[key] {
		if !present {
			nlog.Infof("did not validate %s: not set", key)
			return true
		}
		if !validator(v) {
			nlog.Warningf("configuration check failed for %s with value %v", key, v)
			return false
		}
	}
	return true
}

// ValidateAll runs Validate across every key with registered validators.
func (c *Config) ValidateAll() bool {
	ok := true
	for key := range c.validators {
		if !c.Validate(key) {
			ok = false
		}
	}
	return ok
}

// String implements fmt.Stringer for debug logging.
func (c *Config) String() string {
	return fmt.Sprintf("%+v", c.Options)
}
