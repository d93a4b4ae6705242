package emit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkgscan/pkgscan/pkg/registry"
)

func samplePackage(t *testing.T) *Package {
	t.Helper()
	tree := t.TempDir()
	if err := os.WriteFile(filepath.Join(tree, "LICENSE"), []byte("MIT License text"), 0644); err != nil {
		t.Fatal(err)
	}
	return &Package{
		RegistryName: "foo_bar",
		Canonical:    "python-foo-bar",
		Version:      "1.2.3",
		ArchiveURL:   "https://files.example/packages/ab/cd/foo_bar-1.2.3.tar.gz",
		Filename:     "foo_bar-1.2.3.tar.gz",
		Method:       "setuptools",
		Summary:      "Does one thing well",
		Homepage:     "https://example.org/foo-bar",
		MetadataURL:  "https://pypi.org/pypi/foo_bar/json",
		Digests:      registry.Digests{SHA256: "deadbeef"},
		Deps:         []string{"python-requests", "python-click"},
		Licenses:     []string{"MIT"},
		LicenseFiles: []string{"LICENSE"},
		TreeRoot:     tree,
	}
}

func TestWrite_EmitsAllThreeFiles(t *testing.T) {
	out := t.TempDir()
	e := &Emitter{OutputRoot: out}
	p := samplePackage(t)

	if err := e.Write(p); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	for _, name := range []string{"python-foo-bar.mk", "python-foo-bar.hash", "Config.in"} {
		if _, err := os.Stat(filepath.Join(out, "python-foo-bar", name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestWrite_Reproducible(t *testing.T) {
	out := t.TempDir()
	e := &Emitter{OutputRoot: out}
	p := samplePackage(t)

	if err := e.Write(p); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(out, "python-foo-bar", "python-foo-bar.mk"))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Write(p); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(out, "python-foo-bar", "python-foo-bar.mk"))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("identical records must produce byte-identical recipes")
	}
}

func TestRecipe_Content(t *testing.T) {
	content, err := renderRecipe(samplePackage(t))
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"# python-foo-bar\n",
		"PYTHON_FOO_BAR_VERSION = 1.2.3\n",
		"PYTHON_FOO_BAR_SOURCE = foo_bar-$(PYTHON_FOO_BAR_VERSION).tar.gz\n",
		"PYTHON_FOO_BAR_SITE = https://files.example/packages/ab/cd\n",
		"PYTHON_FOO_BAR_SETUP_TYPE = setuptools\n",
		"PYTHON_FOO_BAR_LICENSE = MIT\n",
		"PYTHON_FOO_BAR_LICENSE_FILES = LICENSE\n",
		"$(eval $(python-package))\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("recipe missing %q:\n%s", want, content)
		}
	}
}

func TestRecipe_NoSourceOverrideWhenNamesMatch(t *testing.T) {
	p := samplePackage(t)
	p.RegistryName = "foo-bar"

	content, err := renderRecipe(p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(content, "_SOURCE =") {
		t.Errorf("SOURCE must be omitted when canonical matches registry name:\n%s", content)
	}
}

func TestRecipe_SourceOverrideEmptyVersion(t *testing.T) {
	p := samplePackage(t)
	p.Version = ""
	p.Filename = "foo_bar.tar.gz"

	content, err := renderRecipe(p)
	if err != nil {
		t.Fatalf("renderRecipe failed: %v", err)
	}
	if !strings.Contains(content, "PYTHON_FOO_BAR_SOURCE = foo_bar.tar.gz\n") {
		t.Errorf("empty version must leave the filename untouched:\n%s", content)
	}
	if strings.Contains(content, "$(PYTHON_FOO_BAR_VERSION).tar.gz") ||
		strings.Contains(content, "SOURCE = $(PYTHON_FOO_BAR_VERSION)") {
		t.Errorf("version placeholder must not be substituted into the filename:\n%s", content)
	}
}

func TestHash_OnlySuppliedDigests(t *testing.T) {
	p := samplePackage(t)
	content, err := renderHash(p)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(content, "sha256  deadbeef  foo_bar-1.2.3.tar.gz\n") {
		t.Errorf("missing sha256 archive line:\n%s", content)
	}
	if strings.Contains(content, "\nmd5  ") {
		t.Errorf("md5 line emitted without an md5 digest:\n%s", content)
	}
	if !strings.Contains(content, "# Locally computed sha256 checksums\n") {
		t.Errorf("missing local checksum section:\n%s", content)
	}
	if !strings.Contains(content, "  LICENSE\n") {
		t.Errorf("missing license file checksum line:\n%s", content)
	}
}

func TestHash_NoLicenseFiles(t *testing.T) {
	p := samplePackage(t)
	p.LicenseFiles = nil

	content, err := renderHash(p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(content, "Locally computed") {
		t.Error("local checksum section must be omitted without license files")
	}
}

func TestConfig_Content(t *testing.T) {
	content, err := renderConfig(samplePackage(t))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(content, "config BR2_PACKAGE_PYTHON_FOO_BAR\n") {
		t.Errorf("bad config header:\n%s", content)
	}
	if !strings.Contains(content, "\tbool \"python-foo-bar\"\n") {
		t.Errorf("missing bool label:\n%s", content)
	}

	// Select lines are sorted by canonical dependency name.
	click := strings.Index(content, "select BR2_PACKAGE_PYTHON_CLICK # runtime")
	requests := strings.Index(content, "select BR2_PACKAGE_PYTHON_REQUESTS # runtime")
	if click == -1 || requests == -1 {
		t.Fatalf("missing select lines:\n%s", content)
	}
	if click > requests {
		t.Error("select lines must be sorted")
	}
}

func TestConfig_SummaryGetsPeriod(t *testing.T) {
	p := samplePackage(t)
	p.Summary = "No trailing punctuation here"

	content, err := renderConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "No trailing punctuation here.\n") {
		t.Errorf("summary must end with a period:\n%s", content)
	}
}

func TestConfig_HomepageAfterBlankLine(t *testing.T) {
	content, err := renderConfig(samplePackage(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "\n\n\t  https://example.org/foo-bar\n") {
		t.Errorf("homepage must follow a blank line:\n%s", content)
	}
}

func TestConfig_NoHomepage(t *testing.T) {
	p := samplePackage(t)
	p.Homepage = ""

	content, err := renderConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(content, "https://") {
		t.Errorf("no homepage line expected:\n%s", content)
	}
}

func TestWrap(t *testing.T) {
	lines := wrap("a sequence of fairly short words repeated again and again and again", 20)
	for _, line := range lines {
		if len(line) > 20 {
			t.Errorf("line exceeds width: %q", line)
		}
	}
	if got := strings.Join(lines, " "); got != "a sequence of fairly short words repeated again and again and again" {
		t.Errorf("wrap lost content: %q", got)
	}
}

func TestTerminated(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello", "Hello."},
		{"Hello.", "Hello."},
		{"Really?", "Really?"},
		{"  spaced  ", "spaced."},
		{"", ""},
	}
	for _, tt := range tests {
		if got := terminated(tt.in); got != tt.want {
			t.Errorf("terminated(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
