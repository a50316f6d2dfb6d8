package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionsFor_TotalOverAllKinds(t *testing.T) {
	kinds := []Kind{KindNode, KindPython, KindRuby, KindPHP, KindStatic, KindOther}

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			b := ActionsFor(Profile{Kind: kind}, "app", 3000)
			assert.Equal(t, kind, b.Kind())
			// a bundle always resolves to something, even if a sentinel
			start := b.ResolveStart(t.TempDir())
			assert.True(t, start.Command != "" || start.None || start.Manual)
		})
	}
}

func TestActionsFor_AutoProvisionedKindsCarryScripts(t *testing.T) {
	for _, kind := range []Kind{KindNode, KindPython, KindRuby, KindPHP} {
		b := ActionsFor(Profile{Kind: kind}, "app", 3000)
		assert.NotEmpty(t, b.InstallPackages, kind.String())
		assert.NotEmpty(t, b.InstallDependencies, kind.String())
		assert.NotEmpty(t, b.Teardown, kind.String())
		assert.NotEmpty(t, b.StartCandidates, kind.String())
		// install is check-then-install: the presence probe comes first
		assert.Contains(t, b.InstallPackages, "command -v", kind.String())
	}
}

func TestActionsFor_StaticAndOtherAreNoOps(t *testing.T) {
	static := ActionsFor(Profile{Kind: KindStatic}, "app", 3000)
	assert.Empty(t, static.InstallPackages)
	assert.Empty(t, static.InstallDependencies)
	assert.Empty(t, static.Teardown)

	start := static.ResolveStart(t.TempDir())
	assert.True(t, start.None)
	assert.False(t, start.Manual)

	other := ActionsFor(Profile{Kind: KindOther}, "app", 3000)
	start = other.ResolveStart(t.TempDir())
	assert.True(t, start.Manual)
	assert.False(t, start.None)
}

func TestActionsFor_NodeVersionSelectsSetupScript(t *testing.T) {
	b := ActionsFor(Profile{Kind: KindNode, Version: "18.0.0"}, "app", 3000)
	assert.Contains(t, b.InstallPackages, "setup_18.x")

	b = ActionsFor(Profile{Kind: KindNode}, "app", 3000)
	assert.NotContains(t, b.InstallPackages, "nodesource")
}

func TestResolveStart_NodePrefersDeclaredScript(t *testing.T) {
	dir := t.TempDir()
	pkg := `{"name":"demo","scripts":{"start":"node server.js"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(pkg), 0o644))

	b := ActionsFor(Profile{Kind: KindNode}, "app", 3000)
	start := b.ResolveStart(dir)
	assert.Equal(t, "PORT=3000 npm start", start.Command)
}

func TestResolveStart_NodeFallsBackToEntryPoints(t *testing.T) {
	dir := t.TempDir()
	// package.json without a start script must not resolve to npm start
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"demo"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte(""), 0o644))

	b := ActionsFor(Profile{Kind: KindNode}, "app", 3000)
	start := b.ResolveStart(dir)
	assert.Equal(t, "PORT=3000 node app.js", start.Command)
}

func TestResolveStart_NodeManualWhenNothingMatches(t *testing.T) {
	b := ActionsFor(Profile{Kind: KindNode}, "app", 3000)
	start := b.ResolveStart(t.TempDir())
	assert.True(t, start.Manual)
}

func TestResolveStart_PythonCandidateOrder(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{"django", []string{"manage.py", "app.py"}, "python3 manage.py runserver 127.0.0.1:8000"},
		{"plain app", []string{"app.py", "main.py"}, "python3 app.py"},
		{"main only", []string{"main.py"}, "python3 main.py"},
	}

	b := ActionsFor(Profile{Kind: KindPython}, "app", 8000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, tt.files...)
			start := b.ResolveStart(dir)
			assert.Equal(t, tt.want, start.Command)
		})
	}
}

func TestResolveStart_PHPAlwaysResolves(t *testing.T) {
	b := ActionsFor(Profile{Kind: KindPHP}, "app", 9000)
	// even without index.php the built-in server fallback applies
	start := b.ResolveStart(t.TempDir())
	assert.Equal(t, "php -S 127.0.0.1:9000 -t .", start.Command)
	assert.False(t, start.Manual)
}

func TestTeardownScriptsTolerateAbsence(t *testing.T) {
	node := ActionsFor(Profile{Kind: KindNode}, "myapp", 3000)
	assert.Contains(t, node.Teardown, "pm2 delete myapp")
	assert.Contains(t, node.Teardown, "|| true")

	py := ActionsFor(Profile{Kind: KindPython}, "myapp", 3000)
	assert.Contains(t, py.Teardown, "/etc/systemd/system/myapp.service")
	assert.Contains(t, py.Teardown, "|| true")
}

func TestHasStartScript(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasStartScript(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("not json"), 0o644))
	assert.False(t, HasStartScript(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"scripts":{"start":"node index.js"}}`), 0o644))
	assert.True(t, HasStartScript(dir))
}
