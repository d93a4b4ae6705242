package resolve

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	depNameRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)`)
	markerRE  = regexp.MustCompile(`;\s*(.+)$`)
	extraRE   = regexp.MustCompile(`\bextra\b`)
)

// Dep is one mandatory runtime dependency: the bare name to look up in the
// registry and the canonical name used for directories and select lines.
type Dep struct {
	Name      string // registry name, first token of the requirement
	Canonical string // CanonicalName(Name)
}

// ParseRequirement reduces one raw requirement string to its bare
// distribution name. It returns ok=false for entries that carry no
// mandatory runtime dependency: blanks, comments, and requirements gated
// behind an "extra" environment marker.
//
//	"bar>=2,<3"                          -> "bar", true
//	"foo[extra]>=1.0; extra == \"test\"" -> discarded
func ParseRequirement(raw string) (string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	if m := markerRE.FindStringSubmatch(line); len(m) > 1 && extraRE.MatchString(m[1]) {
		return "", false
	}
	m := depNameRE.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// Runtime maps a raw requirement list to the deduplicated set of mandatory
// runtime dependencies, preserving first-seen order. Deduplication is by
// canonical name, so "Foo" and "foo_" collapse into one dependency. This
// is the edge set emitted as select lines in the feature stanza.
func Runtime(reqs []string) []Dep {
	seen := make(map[string]bool)
	var deps []Dep
	for _, raw := range reqs {
		name, ok := ParseRequirement(raw)
		if !ok {
			continue
		}
		canonical := CanonicalName(name)
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		deps = append(deps, Dep{Name: name, Canonical: canonical})
	}
	return deps
}

// Discover filters dependencies down to those not yet known: a dependency
// is new when no <outputRoot>/<canonical> directory exists on disk and its
// canonical name is not already pending in the work queue. The on-disk
// check is what makes the outer worklist a terminating fixed point --
// every emitted package permanently removes its name from future
// consideration.
func Discover(deps []Dep, outputRoot string, pending map[string]bool) []Dep {
	var fresh []Dep
	for _, dep := range deps {
		if pending[dep.Canonical] {
			continue
		}
		if info, err := os.Stat(filepath.Join(outputRoot, dep.Canonical)); err == nil && info.IsDir() {
			continue
		}
		fresh = append(fresh, dep)
	}
	return fresh
}
