// Package resolve turns raw requirement strings into canonical target
// package names and drives the transitive discovery of new packages.
package resolve

import (
	"regexp"
	"strings"
)

// Prefix is applied to every canonical package name. Target packages live
// in per-package directories named after their canonical name.
const Prefix = "python-"

var nonNameRE = regexp.MustCompile(`[^a-z0-9-]`)

// CanonicalName derives the target-system package name from a registry name:
// lower-cased, underscores turned into hyphens, everything outside
// [a-z0-9-] stripped, and the fixed prefix applied. The function is
// idempotent: feeding a canonical name back in returns it unchanged, which
// matters because both dependency names and a package's own name pass
// through here and must line up with directories already on disk.
func CanonicalName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "_", "-")
	s = nonNameRE.ReplaceAllString(s, "")
	s = strings.Trim(s, "-")
	if !strings.HasPrefix(s, Prefix) {
		s = Prefix + s
	}
	return s
}

// VarName derives the uppercase-with-underscores key used in emitted recipe
// files from a canonical name: "python-dateutil" -> "PYTHON_DATEUTIL".
func VarName(canonical string) string {
	return strings.ToUpper(strings.ReplaceAll(canonical, "-", "_"))
}

// BaseName strips the canonical prefix: "python-foo" -> "foo".
func BaseName(canonical string) string {
	return strings.TrimPrefix(canonical, Prefix)
}
