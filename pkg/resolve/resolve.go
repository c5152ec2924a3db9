// Package resolve locates local framework files through a declarative,
// ordered pattern list. Candidate generation is a pure function so the
// naming conventions stay testable without touching the filesystem.
package resolve

import (
	"os"
	"path/filepath"
	"strings"
)

// Placeholders recognized in patterns.
const (
	NameToken    = "{name}"
	VersionToken = "{version}"
)

// DefaultPatterns covers the naming conventions found across framework
// corpora, most specific first. Version-bearing patterns are skipped when
// no version is supplied.
var DefaultPatterns = []string{
	"{name}_{version}.json",
	"{name}-{version}.json",
	"{name}_framework.json",
	"{name}.json",
	"frameworks/{name}_{version}.json",
	"frameworks/{name}.json",
}

// Strategy is an ordered list of filename patterns.
type Strategy struct {
	Patterns []string
}

func DefaultStrategy() *Strategy {
	return &Strategy{Patterns: DefaultPatterns}
}

// Candidates expands the pattern list for an artifact. Pure: no I/O.
func (s *Strategy) Candidates(name, version string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, pattern := range s.Patterns {
		if version == "" && strings.Contains(pattern, VersionToken) {
			continue
		}
		candidate := strings.ReplaceAll(pattern, NameToken, name)
		candidate = strings.ReplaceAll(candidate, VersionToken, version)
		if !seen[candidate] {
			seen[candidate] = true
			out = append(out, candidate)
		}
	}
	return out
}

// Resolve probes candidates under dir in order and returns the first
// existing regular file, or "" when none matches.
func (s *Strategy) Resolve(dir, name, version string) string {
	for _, candidate := range s.Candidates(name, version) {
		path := filepath.Join(dir, candidate)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}
