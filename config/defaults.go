package config

import (
	"os"
	"path/filepath"

	"github.com/matthutchison/cryoempipe/cmn/cos"
)

// registerDefaults mirrors Config._get_default_validators from the
// source this was ported from: presence/type checks for every option
// the pipeline and the (out-of-scope) downstream analysis tool consume.
func (c *Config) registerDefaults() {
	nonEmptyString := func(v any) bool {
		s, ok := v.(string)
		return ok && s != ""
	}
	existingPath := func(v any) bool {
		s, ok := v.(string)
		if !ok || s == "" {
			return false
		}
		_, err := os.Stat(s)
		return err == nil
	}
	positiveInt := func(v any) bool {
		f, ok := v.(float64) // jsoniter decodes numbers as float64 into any
		return ok && f > 0
	}
	validUUID := func(v any) bool {
		s, ok := v.(string)
		if !ok || s == "" {
			return true // optional per source: nil/empty is acceptable
		}
		return looksLikeUUID(s)
	}

	for _, key := range []string{"local_root", "storage_root", "scipion_config_path", "source_root"} {
		c.AddValidator(key, existingPath)
	}
	c.AddValidator("project_name", nonEmptyString)
	c.AddValidator("source_pattern", nonEmptyString)
	c.AddValidator("frames", positiveInt)
	c.AddValidator("globus_source_endpoint_id", validUUID)
	c.AddValidator("globus_destination_endpoint_id", validUUID)
}

// looksLikeUUID checks the canonical 8-4-4-4-12 hex grouping, matching
// Python's bool(UUID(v)) without pulling in a UUID-parsing dependency
// for a single shape check.
func looksLikeUUID(s string) bool {
	groups := []int{8, 4, 4, 4, 12}
	pos := 0
	for i, g := range groups {
		if pos+g > len(s) {
			return false
		}
		for _, r := range s[pos : pos+g] {
			if !isHex(r) {
				return false
			}
		}
		pos += g
		if i < len(groups)-1 {
			if pos >= len(s) || s[pos] != '-' {
				return false
			}
			pos++
		}
	}
	return pos == len(s)
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// DefaultPath returns the conventional config file location for a
// project: <dir>/<project>-cryoempipe.json. When project is unset (the
// config hasn't been named yet) cos.GenRunID gives the file a
// collision-resistant name; each such call yields a different name.
func DefaultPath(dir, project string) string {
	if project == "" {
		project = cos.GenRunID()
	}
	return filepath.Join(dir, project+"-cryoempipe.json")
}
