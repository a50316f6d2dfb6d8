package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StartCandidate is one way to launch the application, gated on a file that
// must exist in the project root. An empty Requires means unconditional.
type StartCandidate struct {
	Command  string
	Requires string
}

// StartCommand is the resolved launch expression. None means there is nothing
// to start (static sites); Manual means the runtime could not be automated
// and the operator has to start the app themselves.
type StartCommand struct {
	Command string
	None    bool
	Manual  bool
}

// Bundle carries the four runtime-specific operations derived once from a
// profile. The scripts are opaque to the pipeline: it only cares about their
// exit status. An empty script is a no-op stage.
type Bundle struct {
	kind Kind

	// InstallPackages installs the interpreter/toolchain on the remote host.
	// Check-then-install: when the interpreter already answers, the script
	// reports its version and skips the install.
	InstallPackages string

	// InstallDependencies installs project dependencies; executed from the
	// remote project directory.
	InstallDependencies string

	// Teardown removes the supervised entry this runtime registers, used by
	// the cleanup path. Tolerates the entry being absent.
	Teardown string

	// StartCandidates are tried in declaration order; the first one whose
	// precondition file exists locally wins.
	StartCandidates []StartCandidate
}

func (b Bundle) Kind() Kind { return b.kind }

// ActionsFor maps a profile to its provisioning bundle. Total over every
// Kind: unsupported kinds get a defined no-op bundle rather than an error.
func ActionsFor(p Profile, app string, port int) Bundle {
	switch p.Kind {
	case KindNode:
		return nodeBundle(p, app, port)
	case KindPython:
		return pythonBundle(app, port)
	case KindRuby:
		return rubyBundle(app, port)
	case KindPHP:
		return phpBundle(app, port)
	case KindStatic:
		return Bundle{kind: KindStatic}
	default:
		return Bundle{kind: KindOther}
	}
}

// ResolveStart picks the launch expression for this bundle by probing the
// local project copy. Evaluated locally before any remote start is attempted.
func (b Bundle) ResolveStart(projectRoot string) StartCommand {
	switch b.kind {
	case KindStatic:
		return StartCommand{None: true}
	case KindOther:
		return StartCommand{Manual: true}
	}

	for _, c := range b.StartCandidates {
		switch {
		case b.kind == KindNode && c.Requires == "package.json":
			// the project-declared script wins only when actually declared
			if HasStartScript(projectRoot) {
				return StartCommand{Command: c.Command}
			}
		case c.Requires == "" || fileExists(filepath.Join(projectRoot, c.Requires)):
			return StartCommand{Command: c.Command}
		}
	}
	return StartCommand{Manual: true}
}

func nodeBundle(p Profile, app string, port int) Bundle {
	install := "command -v node >/dev/null 2>&1 && node --version || { " +
		"sudo apt-get update -y -qq && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq nodejs npm; }"
	if major := majorVersion(p.Version); major != "" {
		install = fmt.Sprintf(
			"command -v node >/dev/null 2>&1 && node --version || { "+
				"curl -fsSL https://deb.nodesource.com/setup_%s.x | sudo -E bash - && "+
				"sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq nodejs; }", major)
	}

	return Bundle{
		kind:                KindNode,
		InstallPackages:     install,
		InstallDependencies: "[ ! -f package.json ] || npm install --omit=dev --no-audit --no-fund",
		Teardown: fmt.Sprintf(
			"pm2 delete %s >/dev/null 2>&1 || true; pm2 save >/dev/null 2>&1 || true", app),
		StartCandidates: nodeStartCandidates(port),
	}
}

func pythonBundle(app string, port int) Bundle {
	return Bundle{
		kind: KindPython,
		InstallPackages: "command -v python3 >/dev/null 2>&1 && python3 --version || { " +
			"sudo apt-get update -y -qq && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq python3 python3-pip; }",
		InstallDependencies: "[ ! -f requirements.txt ] || pip3 install -q -r requirements.txt",
		Teardown:            systemdTeardown(app),
		StartCandidates: []StartCandidate{
			{Command: fmt.Sprintf("python3 manage.py runserver 127.0.0.1:%d", port), Requires: "manage.py"},
			{Command: "python3 app.py", Requires: "app.py"},
			{Command: "python3 main.py", Requires: "main.py"},
		},
	}
}

func rubyBundle(app string, port int) Bundle {
	return Bundle{
		kind: KindRuby,
		InstallPackages: "command -v ruby >/dev/null 2>&1 && ruby --version || { " +
			"sudo apt-get update -y -qq && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq ruby-full build-essential; }; " +
			"command -v bundle >/dev/null 2>&1 || sudo gem install bundler --no-document",
		InstallDependencies: "[ ! -f Gemfile ] || bundle install --quiet",
		Teardown:            systemdTeardown(app),
		StartCandidates: []StartCandidate{
			{Command: fmt.Sprintf("bundle exec rails server -b 127.0.0.1 -p %d", port), Requires: "bin/rails"},
			{Command: fmt.Sprintf("bundle exec rackup -o 127.0.0.1 -p %d", port), Requires: "config.ru"},
			{Command: fmt.Sprintf("ruby app.rb -o 127.0.0.1 -p %d", port), Requires: "app.rb"},
		},
	}
}

func phpBundle(app string, port int) Bundle {
	return Bundle{
		kind: KindPHP,
		InstallPackages: "command -v php >/dev/null 2>&1 && php --version || { " +
			"sudo apt-get update -y -qq && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq php-cli php-fpm; }; " +
			"command -v composer >/dev/null 2>&1 || { curl -fsS https://getcomposer.org/installer | php -- --quiet && sudo mv composer.phar /usr/local/bin/composer; }",
		InstallDependencies: "[ ! -f composer.json ] || composer install --no-dev --no-interaction --quiet",
		Teardown:            systemdTeardown(app),
		StartCandidates: []StartCandidate{
			{Command: fmt.Sprintf("php -S 127.0.0.1:%d -t .", port), Requires: "index.php"},
			{Command: fmt.Sprintf("php -S 127.0.0.1:%d -t .", port)},
		},
	}
}

func systemdTeardown(app string) string {
	return fmt.Sprintf(
		"sudo systemctl disable --now %[1]s >/dev/null 2>&1 || true; "+
			"sudo rm -f /etc/systemd/system/%[1]s.service; "+
			"sudo systemctl daemon-reload", app)
}

func nodeStartCandidates(port int) []StartCandidate {
	env := fmt.Sprintf("PORT=%d ", port)
	return []StartCandidate{
		// package.json "start" script takes precedence; the candidate is
		// replaced by conventional entry points when the script is absent.
		{Command: env + "npm start", Requires: "package.json"},
		{Command: env + "node server.js", Requires: "server.js"},
		{Command: env + "node app.js", Requires: "app.js"},
		{Command: env + "node index.js", Requires: "index.js"},
	}
}

type packageJSON struct {
	Name    string            `json:"name"`
	Scripts map[string]string `json:"scripts"`
}

// HasStartScript reports whether the local package.json declares a "start"
// script. Node resolution prefers the project-declared mechanism over
// entry-point guessing.
func HasStartScript(projectRoot string) bool {
	data, err := os.ReadFile(filepath.Join(projectRoot, "package.json"))
	if err != nil {
		return false
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts["start"]
	return ok
}

func majorVersion(v string) string {
	if v == "" {
		return ""
	}
	return strings.SplitN(v, ".", 2)[0]
}
