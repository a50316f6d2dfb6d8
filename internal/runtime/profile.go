package runtime

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Kind is the closed set of application runtimes the orchestrator can
// provision. Everything downstream (package install, supervision, proxying)
// branches on exactly this value.
type Kind int

const (
	KindOther Kind = iota
	KindNode
	KindPython
	KindRuby
	KindPHP
	KindStatic
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindPython:
		return "python"
	case KindRuby:
		return "ruby"
	case KindPHP:
		return "php"
	case KindStatic:
		return "static"
	default:
		return "other"
	}
}

// ParseKind maps a user-supplied runtime selector to a Kind. "auto" and the
// empty string are not kinds and report ok=false so the caller falls back to
// evidence-based detection.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "node", "nodejs":
		return KindNode, true
	case "python":
		return KindPython, true
	case "ruby":
		return KindRuby, true
	case "php":
		return KindPHP, true
	case "static", "html":
		return KindStatic, true
	case "other":
		return KindOther, true
	default:
		return KindOther, false
	}
}

// Profile is the immutable classification result for one run.
type Profile struct {
	Kind    Kind
	Version string
}

// Supervised reports whether this runtime gets a process supervisor at all.
// Static sites and unclassified projects have nothing to keep alive.
func (p Profile) Supervised() bool {
	switch p.Kind {
	case KindStatic, KindOther:
		return false
	default:
		return true
	}
}

// evidence files probed in priority order; the first hit wins, no scoring.
var evidence = []struct {
	kind  Kind
	files []string
	dirs  []string
}{
	{kind: KindNode, files: []string{"package.json"}},
	{kind: KindPython, files: []string{"requirements.txt", "Pipfile", "pyproject.toml"}},
	{kind: KindRuby, files: []string{"Gemfile"}},
	{kind: KindPHP, files: []string{"composer.json", "index.php"}},
	{kind: KindStatic, files: []string{"index.html"}, dirs: []string{"static", "public"}},
}

// Classify derives the runtime profile for a run. An explicit concrete choice
// is honored unchanged; "auto" (or anything unparseable) probes the project
// root for evidence files in fixed priority order. Classification never
// fails: a project with no evidence degrades to KindOther, which downstream
// stages treat as "manual, no automation".
func Classify(choice, version, projectRoot string) Profile {
	if kind, ok := ParseKind(choice); ok && kind != KindOther {
		return Profile{Kind: kind, Version: normalizeVersion(version)}
	}
	return Profile{Kind: detect(projectRoot), Version: normalizeVersion(version)}
}

func detect(root string) Kind {
	for _, ev := range evidence {
		for _, f := range ev.files {
			if fileExists(filepath.Join(root, f)) {
				return ev.kind
			}
		}
		for _, d := range ev.dirs {
			if dirExists(filepath.Join(root, d)) {
				return ev.kind
			}
		}
	}
	return KindOther
}

// normalizeVersion keeps whatever numeric version the user asked for but
// strips a leading "v" so shell interpolation stays predictable; semver is
// only used to sanity-check well-formed inputs.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	canonical := v
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if semver.IsValid(canonical) {
		return strings.TrimPrefix(semver.Canonical(canonical), "v")
	}
	return strings.TrimPrefix(v, "v")
}

// CompareVersions reports -1/0/+1 for two loosely formatted version strings,
// used to compare an interpreter version reported by the remote host against
// the requested one.
func CompareVersions(a, b string) int {
	if !strings.HasPrefix(a, "v") {
		a = "v" + a
	}
	if !strings.HasPrefix(b, "v") {
		b = "v" + b
	}
	return semver.Compare(semver.Canonical(a), semver.Canonical(b))
}

var versionPattern = regexp.MustCompile(`v?(\d+(?:\.\d+){0,2})`)

// ExtractVersion pulls the first dotted numeric version out of interpreter
// output such as "v18.19.0" or "Python 3.11.2". Empty when none is found.
func ExtractVersion(output string) string {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return m[1]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
