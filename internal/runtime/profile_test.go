package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	}
	return dir
}

func TestClassify_EvidenceOrder(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		dirs  []string
		want  Kind
	}{
		{name: "package.json", files: []string{"package.json"}, want: KindNode},
		{name: "requirements.txt", files: []string{"requirements.txt"}, want: KindPython},
		{name: "Pipfile", files: []string{"Pipfile"}, want: KindPython},
		{name: "pyproject.toml", files: []string{"pyproject.toml"}, want: KindPython},
		{name: "Gemfile", files: []string{"Gemfile"}, want: KindRuby},
		{name: "composer.json", files: []string{"composer.json"}, want: KindPHP},
		{name: "index.php", files: []string{"index.php"}, want: KindPHP},
		{name: "index.html", files: []string{"index.html"}, want: KindStatic},
		{name: "no evidence", files: nil, want: KindOther},
		{
			// first match wins: node evidence shadows ruby evidence
			name:  "package.json beats Gemfile",
			files: []string{"package.json", "Gemfile"},
			want:  KindNode,
		},
		{
			name:  "requirements beat composer",
			files: []string{"requirements.txt", "composer.json"},
			want:  KindPython,
		},
		{
			name:  "php beats static",
			files: []string{"index.php", "index.html"},
			want:  KindPHP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, tt.files...)
			for _, d := range tt.dirs {
				require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
			}
			got := Classify("auto", "", dir)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassify_StaticDirectoryEvidence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "public"), 0o755))

	got := Classify("auto", "", dir)
	assert.Equal(t, KindStatic, got.Kind)
}

func TestClassify_ExplicitChoiceWins(t *testing.T) {
	// evidence says node, the user says python
	dir := writeFiles(t, "package.json")

	got := Classify("python", "3.11", dir)
	assert.Equal(t, KindPython, got.Kind)
	assert.Equal(t, "3.11.0", got.Version)
}

func TestClassify_OtherFallsBackToDetection(t *testing.T) {
	dir := writeFiles(t, "Gemfile")

	assert.Equal(t, KindRuby, Classify("other", "", dir).Kind)
	assert.Equal(t, KindRuby, Classify("", "", dir).Kind)
	assert.Equal(t, KindRuby, Classify("auto", "", dir).Kind)
}

func TestClassify_MissingRootDegradesToOther(t *testing.T) {
	got := Classify("auto", "", filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Equal(t, KindOther, got.Kind)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"node", KindNode, true},
		{"nodejs", KindNode, true},
		{"Python", KindPython, true},
		{"ruby", KindRuby, true},
		{"php", KindPHP, true},
		{"static", KindStatic, true},
		{"other", KindOther, true},
		{"auto", KindOther, false},
		{"", KindOther, false},
		{"golang", KindOther, false},
	}

	for _, tt := range tests {
		kind, ok := ParseKind(tt.in)
		assert.Equal(t, tt.want, kind, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestNormalizeVersion(t *testing.T) {
	assert.Equal(t, "", normalizeVersion(""))
	assert.Equal(t, "18.0.0", normalizeVersion("18"))
	assert.Equal(t, "3.11.0", normalizeVersion("3.11"))
	assert.Equal(t, "1.2.3", normalizeVersion("v1.2.3"))
	// not semver, passed through minus the prefix
	assert.Equal(t, "latest", normalizeVersion("latest"))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, -1, CompareVersions("16.20.2", "18"))
	assert.Equal(t, 0, CompareVersions("18.0.0", "18"))
	assert.Equal(t, 1, CompareVersions("20.1", "18.19.0"))
	assert.Equal(t, 0, CompareVersions("v3.11", "3.11.0"))
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, "18.19.0", ExtractVersion("v18.19.0"))
	assert.Equal(t, "3.11.2", ExtractVersion("Python 3.11.2"))
	assert.Equal(t, "3.2.2", ExtractVersion("ruby 3.2.2 (2023-03-30 revision e51014f9c0)"))
	assert.Equal(t, "8.2", ExtractVersion("PHP 8.2 (cli)"))
	assert.Equal(t, "", ExtractVersion("command not found"))
	assert.Equal(t, "", ExtractVersion(""))
}

func TestProfile_Supervised(t *testing.T) {
	assert.True(t, Profile{Kind: KindNode}.Supervised())
	assert.True(t, Profile{Kind: KindPython}.Supervised())
	assert.True(t, Profile{Kind: KindRuby}.Supervised())
	assert.True(t, Profile{Kind: KindPHP}.Supervised())
	assert.False(t, Profile{Kind: KindStatic}.Supervised())
	assert.False(t, Profile{Kind: KindOther}.Supervised())
}
