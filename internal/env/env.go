// Package env composes the environment a replica process inherits: the
// supervisor's own environment overlaid with the owning program's
// configured overrides, with ${VAR} references in those overrides expanded
// against the merged result.
package env

import (
	"os"
	"strings"
	"sync"
)

var (
	inheritedOnce sync.Once
	inherited     map[string]string
)

// inheritedVars snapshots the supervisor's own environment once. A program
// with Processes > 1 spawns many replicas from the same Spec in quick
// succession; rescanning os.Environ on every one of those Launch calls would
// be pure waste, so the scan happens exactly once per supervisor process.
func inheritedVars() map[string]string {
	inheritedOnce.Do(func() {
		inherited = parsePairs(os.Environ())
	})
	return inherited
}

// Merge overlays overrides on top of the supervisor's inherited environment
// (overrides win on key collision), expands ${VAR} references found in the
// result against the merged set, and returns a fresh "KEY=VALUE" slice
// suitable for exec.Cmd.Env.
func Merge(overrides map[string]string) []string {
	base := inheritedVars()
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		if k == "" {
			continue
		}
		merged[k] = v
	}
	for k, v := range merged {
		merged[k] = expand(v, merged)
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func parsePairs(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i >= 0 && kv[:i] != "" {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, vars map[string]string) string {
	if !strings.ContainsRune(s, '$') {
		return s
	}
	res := s
	for k, v := range vars {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
