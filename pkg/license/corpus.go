package license

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgscan/pkgscan/pkg/registry"
)

// minConfidence is the similarity a corpus match must reach before its
// identifier is trusted. Below it the sentinel goes out instead.
const minConfidence = 0.90

// CorpusMatcher fuzzy-matches bundled license files against a directory of
// reference texts. Each corpus file is named <identifier>.txt; the file
// stem becomes the emitted identifier on a confident match.
type CorpusMatcher struct {
	corpus map[string]map[string]bool // identifier -> token set
}

// NewCorpusMatcher loads every .txt file under dir as a reference text.
// Returns an error when the directory is unreadable or holds no texts, so
// the caller can fall back to the classifier table.
func NewCorpusMatcher(dir string) (*CorpusMatcher, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	corpus := make(map[string]map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".txt")
		corpus[id] = tokenize(string(data))
	}
	if len(corpus) == 0 {
		return nil, os.ErrNotExist
	}
	return &CorpusMatcher{corpus: corpus}, nil
}

// Classify matches each bundled license file against the corpus and
// returns the deduplicated identifiers. Files that match nothing with at
// least 90% confidence contribute the manual-review sentinel.
func (m *CorpusMatcher) Classify(md *registry.Metadata, root string, licenseFiles []string) []string {
	var ids []string
	for _, rel := range licenseFiles {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			ids = append(ids, Unknown)
			continue
		}
		id, score := m.bestMatch(string(data))
		if score >= minConfidence {
			ids = append(ids, id)
		} else {
			ids = append(ids, Unknown)
		}
	}
	return dedupe(ids)
}

func (m *CorpusMatcher) bestMatch(text string) (string, float64) {
	tokens := tokenize(text)
	best, bestScore := "", 0.0
	for id, ref := range m.corpus {
		if s := dice(tokens, ref); s > bestScore {
			best, bestScore = id, s
		}
	}
	return best, bestScore
}

// tokenize lower-cases and splits on non-alphanumerics, dropping very
// short tokens that carry no signal.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 2 {
			tokens[sb.String()] = true
		}
		sb.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// dice computes the Sørensen–Dice coefficient of two token sets.
func dice(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for tok := range a {
		if b[tok] {
			common++
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b))
}

var _ Classifier = (*CorpusMatcher)(nil)
