// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package access

import (
	"path"
	"strings"
)

// Match reports whether name matches a glob pattern. Patterns follow
// path.Match syntax with one extension: a trailing "/**" matches the prefix
// itself and everything below it, so "finance/**" covers "finance/q1/report".
// Plain path.Match treats "/" as a boundary, which is what branch and path
// scoping wants ("releases/*" covers "releases/v1" but not "releases/v1/rc").
func Match(pattern, name string) bool {
	if pattern == "**" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		if name == prefix || strings.HasPrefix(name, prefix+"/") {
			return true
		}
		// The prefix may itself contain metacharacters
		if matched, err := path.Match(prefix, name); err == nil && matched {
			return true
		}
		for rest := name; ; {
			i := strings.LastIndex(rest, "/")
			if i < 0 {
				return false
			}
			rest = rest[:i]
			if matched, err := path.Match(prefix, rest); err == nil && matched {
				return true
			}
		}
	}
	matched, err := path.Match(pattern, name)
	return err == nil && matched
}

// MatchAny reports whether name matches any of the patterns. An empty
// pattern list means unrestricted.
func MatchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}
