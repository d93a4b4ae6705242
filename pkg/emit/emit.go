// Package emit writes the per-package descriptor files: the recipe, the
// checksum manifest, and the feature-toggle stanza.
//
// All three files are a pure function of the package record: re-emitting
// the same record yields byte-identical output, and existing files are
// overwritten, never merged.
package emit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkgscan/pkgscan/pkg/registry"
	"github.com/pkgscan/pkgscan/pkg/resolve"
)

// Package is the fully resolved record the emitter consumes. The scan
// driver populates it field by field as a package moves through the
// pipeline; by the time it reaches the emitter it is complete and is never
// mutated afterwards.
type Package struct {
	RegistryName string // name as known to the registry
	Canonical    string // canonical target name, resolve.CanonicalName output
	Version      string
	ArchiveURL   string
	Filename     string
	Method       string // build method label for the recipe
	Summary      string
	Homepage     string
	MetadataURL  string // provenance comment in the hash manifest
	Digests      registry.Digests
	Deps         []string // canonical dependency names
	Licenses     []string
	LicenseFiles []string // relative to TreeRoot
	TreeRoot     string   // extracted source tree, for local checksums
}

// Emitter writes descriptor files under OutputRoot/<canonical>/.
type Emitter struct {
	OutputRoot string
}

// Dir returns the output directory for a package.
func (e *Emitter) Dir(canonical string) string {
	return filepath.Join(e.OutputRoot, canonical)
}

// Write emits all three descriptor files for p, creating the package
// directory as needed.
func (e *Emitter) Write(p *Package) error {
	dir := e.Dir(p.Canonical)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	files := map[string]func(*Package) (string, error){
		p.Canonical + ".mk":   renderRecipe,
		p.Canonical + ".hash": renderHash,
		"Config.in":           renderConfig,
	}
	for name, render := range files {
		content, err := render(p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// renderRecipe produces the line-oriented variable-assignment recipe.
func renderRecipe(p *Package) (string, error) {
	v := resolve.VarName(p.Canonical)
	var b strings.Builder

	bar := strings.Repeat("#", 80)
	fmt.Fprintf(&b, "%s\n#\n# %s\n#\n%s\n\n", bar, p.Canonical, bar)

	fmt.Fprintf(&b, "%s_VERSION = %s\n", v, p.Version)
	if resolve.BaseName(p.Canonical) != p.RegistryName {
		source := p.Filename
		if p.Version != "" {
			source = strings.Replace(source, p.Version, fmt.Sprintf("$(%s_VERSION)", v), 1)
		}
		fmt.Fprintf(&b, "%s_SOURCE = %s\n", v, source)
	}
	fmt.Fprintf(&b, "%s_SITE = %s\n", v, siteURL(p.ArchiveURL, p.Filename))
	fmt.Fprintf(&b, "%s_SETUP_TYPE = %s\n", v, p.Method)
	if len(p.Licenses) > 0 {
		fmt.Fprintf(&b, "%s_LICENSE = %s\n", v, strings.Join(p.Licenses, ", "))
	}
	if len(p.LicenseFiles) > 0 {
		fmt.Fprintf(&b, "%s_LICENSE_FILES = %s\n", v, strings.Join(p.LicenseFiles, " "))
	}

	fmt.Fprintf(&b, "\n$(eval $(python-package))\n")
	return b.String(), nil
}

// siteURL strips the trailing filename from the archive URL.
func siteURL(archiveURL, filename string) string {
	return strings.TrimSuffix(strings.TrimSuffix(archiveURL, filename), "/")
}

// renderHash produces the checksum manifest: one line per registry-supplied
// digest of the archive, then a locally computed strong hash per license
// file.
func renderHash(p *Package) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# md5, sha256 from %s\n", p.MetadataURL)
	if p.Digests.MD5 != "" {
		fmt.Fprintf(&b, "md5  %s  %s\n", p.Digests.MD5, p.Filename)
	}
	if p.Digests.SHA256 != "" {
		fmt.Fprintf(&b, "sha256  %s  %s\n", p.Digests.SHA256, p.Filename)
	}

	if len(p.LicenseFiles) > 0 {
		fmt.Fprintf(&b, "# Locally computed sha256 checksums\n")
		for _, rel := range p.LicenseFiles {
			data, err := os.ReadFile(filepath.Join(p.TreeRoot, rel))
			if err != nil {
				return "", fmt.Errorf("hash license file %s: %w", rel, err)
			}
			sum := sha256.Sum256(data)
			fmt.Fprintf(&b, "sha256  %s  %s\n", hex.EncodeToString(sum[:]), rel)
		}
	}
	return b.String(), nil
}

// helpWidth is the wrap column for the help paragraph, indent included.
const helpWidth = 62

// renderConfig produces the feature-toggle stanza.
func renderConfig(p *Package) (string, error) {
	v := resolve.VarName(p.Canonical)
	var b strings.Builder

	fmt.Fprintf(&b, "config BR2_PACKAGE_%s\n", v)
	fmt.Fprintf(&b, "\tbool \"%s\"\n", p.Canonical)

	deps := append([]string(nil), p.Deps...)
	sort.Strings(deps)
	for _, dep := range deps {
		fmt.Fprintf(&b, "\tselect BR2_PACKAGE_%s # runtime\n", resolve.VarName(dep))
	}

	fmt.Fprintf(&b, "\thelp\n")
	for _, line := range wrap(terminated(p.Summary), helpWidth) {
		fmt.Fprintf(&b, "\t  %s\n", line)
	}
	if p.Homepage != "" {
		fmt.Fprintf(&b, "\n\t  %s\n", p.Homepage)
	}
	return b.String(), nil
}

// terminated guarantees the summary reads as a sentence.
func terminated(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

// wrap greedily word-wraps s to the given width.
func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}
