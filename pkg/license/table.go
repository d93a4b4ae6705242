package license

import (
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pkgscan/pkgscan/pkg/registry"
)

const classifierPrefix = "License :: "

// spdxByClassifier maps the trailing segment of a trove license classifier
// to the identifier expected by the target build system. Names missing
// here pass through verbatim and are flagged in the log as likely wrong.
var spdxByClassifier = map[string]string{
	"Apache Software License":                                 "Apache-2.0",
	"BSD License":                                             "BSD",
	"GNU General Public License (GPL)":                        "GPL",
	"GNU General Public License v2 (GPLv2)":                   "GPL-2.0",
	"GNU General Public License v2 or later (GPLv2+)":         "GPL-2.0+",
	"GNU General Public License v3 (GPLv3)":                   "GPL-3.0",
	"GNU General Public License v3 or later (GPLv3+)":         "GPL-3.0+",
	"GNU Lesser General Public License v2 (LGPLv2)":           "LGPL-2.1",
	"GNU Lesser General Public License v2 or later (LGPLv2+)": "LGPL-2.1+",
	"GNU Lesser General Public License v3 (LGPLv3)":           "LGPL-3.0",
	"GNU Lesser General Public License v3 or later (LGPLv3+)": "LGPL-3.0+",
	"ISC License (ISCL)":                                      "ISC",
	"MIT License":                                             "MIT",
	"Mozilla Public License 1.0 (MPL)":                        "MPL-1.0",
	"Mozilla Public License 1.1 (MPL 1.1)":                    "MPL-1.1",
	"Mozilla Public License 2.0 (MPL 2.0)":                    "MPL-2.0",
	"Python Software Foundation License":                      "Python-2.0",
	"Public Domain":                                           "Public domain",
	"Zope Public License":                                     "ZPL",
}

// Table classifies a package from the registry's free-form trove
// classifiers. It is the fallback strategy when no license corpus is
// available at startup.
type Table struct {
	Logger *log.Logger
}

func (t *Table) logger() *log.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return log.Default()
}

// Classify filters the metadata's classifiers to License entries, maps the
// recognized names to identifiers, and deduplicates. When nothing matches
// it falls back to the registry's single free-text license field.
func (t *Table) Classify(md *registry.Metadata, root string, licenseFiles []string) []string {
	var ids []string
	for _, c := range md.Classifiers {
		if !strings.HasPrefix(c, classifierPrefix) {
			continue
		}
		parts := strings.Split(c, " :: ")
		if len(parts) < 2 {
			continue
		}
		name := parts[len(parts)-1]
		if id, ok := spdxByClassifier[name]; ok {
			ids = append(ids, id)
			continue
		}
		t.logger().Warn("unrecognized license classifier, passing through; likely needs correction",
			"classifier", name)
		ids = append(ids, name)
	}
	ids = dedupe(ids)

	if len(ids) == 0 && strings.TrimSpace(md.License) != "" {
		ids = []string{strings.TrimSpace(md.License)}
	}
	return ids
}

var _ Classifier = (*Table)(nil)
