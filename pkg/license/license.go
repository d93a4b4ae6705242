// Package license maps registry metadata and bundled license files to
// canonical license identifiers.
//
// Two strategies exist and one is chosen once at startup, not per call:
// [CorpusMatcher] fuzzy-matches bundled license texts against a reference
// corpus when one is available, and [Table] falls back to the registry's
// trove classifiers otherwise.
package license

import (
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pkgscan/pkgscan/pkg/registry"
)

// Unknown is the sentinel recorded when no identifier could be determined
// with enough confidence. Emitted verbatim so a human reviewer trips over it.
const Unknown = "UNKNOWN -- check manually"

// Classifier resolves the license identifiers for one package.
// licenseFiles are paths (relative to the extracted tree root) of bundled
// license texts found by [FindFiles].
type Classifier interface {
	Classify(md *registry.Metadata, root string, licenseFiles []string) []string
}

// New selects the classification strategy: the corpus matcher when
// corpusDir holds reference texts, the classifier table otherwise.
func New(corpusDir string, logger *log.Logger) Classifier {
	if logger == nil {
		logger = log.Default()
	}
	if corpusDir != "" {
		if m, err := NewCorpusMatcher(corpusDir); err == nil {
			logger.Debug("license corpus loaded", "dir", corpusDir, "texts", len(m.corpus))
			return m
		}
		logger.Warn("license corpus unusable, falling back to classifiers", "dir", corpusDir)
	}
	return &Table{Logger: logger}
}

// conventional license filenames, matched case-insensitively against the
// top level of the extracted tree.
var conventionalNames = map[string]bool{
	"LICENSE":     true,
	"LICENCE":     true,
	"LICENSE.MD":  true,
	"LICENSE.RST": true,
	"LICENSE.TXT": true,
	"LICENCE.TXT": true,
	"COPYING":     true,
	"COPYING.TXT": true,
	"COPYING.LIB": true,
}

// FindFiles returns the bundled license files in the top level of root,
// as sorted paths relative to root. These feed both classification and the
// locally-computed checksum lines of the emitted hash manifest.
func FindFiles(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if conventionalNames[strings.ToUpper(e.Name())] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files
}

// dedupe keeps first occurrences, preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
