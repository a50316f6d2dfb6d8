package supervisor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/elskow/berth/internal/remote"
)

// PM2 supervises the application with the pm2 process manager. Registration
// installs pm2 globally if absent, replaces any existing entry under the
// logical name (delete-then-start, so repeats never accumulate duplicates),
// persists the process list and wires pm2 into the init system so the entry
// survives a reboot.
type PM2 struct {
	exec   remote.Executor
	logger *zap.Logger
}

func NewPM2(exec remote.Executor, logger *zap.Logger) *PM2 {
	return &PM2{exec: exec, logger: logger}
}

func (p *PM2) Register(ctx context.Context, app, startCommand, workDir string) error {
	res, err := p.exec.Run(ctx, "command -v pm2 >/dev/null 2>&1 || sudo npm install -g pm2 --silent")
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("pm2 install failed (exit %d): %s", res.ExitCode, res.Output)
	}

	cmd := fmt.Sprintf("cd %s && pm2 delete %s >/dev/null 2>&1; %s",
		remote.Quote(workDir), app, pm2StartExpr(app, startCommand))
	res, err = p.exec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("pm2 registration of %s failed (exit %d): %s", app, res.ExitCode, res.Output)
	}

	p.logger.Info("registered pm2 process", zap.String("app", app), zap.String("command", startCommand))

	// boot integration: persist the list and install the init hook once;
	// failures here leave the app running but not reboot-safe, so they are
	// reported by pm2 itself in the output rather than failing the register
	res, err = p.exec.Run(ctx,
		"pm2 save >/dev/null 2>&1 && sudo env PATH=$PATH pm2 startup systemd -u $(whoami) --hp $HOME >/dev/null 2>&1 || true")
	if err != nil {
		return err
	}
	return nil
}

// pm2StartExpr translates the resolved start command into pm2's launch
// syntax. pm2 treats its first argument as a script path, so npm and node
// invocations need rewriting; anything else runs through bash.
func pm2StartExpr(app, startCommand string) string {
	fields := strings.Fields(startCommand)

	// leading VAR=value assignments stay in front of the pm2 invocation
	var env []string
	for len(fields) > 0 && strings.Contains(fields[0], "=") {
		env = append(env, fields[0])
		fields = fields[1:]
	}
	prefix := ""
	if len(env) > 0 {
		prefix = strings.Join(env, " ") + " "
	}

	switch {
	case len(fields) >= 2 && fields[0] == "npm":
		return fmt.Sprintf("%spm2 start npm --name %s -- %s", prefix, app, strings.Join(fields[1:], " "))
	case len(fields) >= 2 && fields[0] == "node":
		return fmt.Sprintf("%spm2 start %s --name %s", prefix, fields[1], app)
	default:
		return fmt.Sprintf("%spm2 start bash --name %s -- -lc %s",
			prefix, app, remote.Quote(strings.Join(fields, " ")))
	}
}

func (p *PM2) Start(ctx context.Context, app string) error {
	res, err := p.exec.Run(ctx, fmt.Sprintf("pm2 start %s", app))
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("pm2 start of %s failed (exit %d): %s", app, res.ExitCode, res.Output)
	}
	return nil
}

func (p *PM2) Stop(ctx context.Context, app string) error {
	res, err := p.exec.Run(ctx, fmt.Sprintf("pm2 stop %s", app))
	if err != nil {
		return err
	}
	// an entry that was never registered or already stopped is a success
	// for the teardown path
	if !res.OK() && !absentEntry(res.Output) {
		return fmt.Errorf("pm2 stop of %s failed (exit %d): %s", app, res.ExitCode, res.Output)
	}
	return nil
}

func (p *PM2) Status(ctx context.Context, app string) (State, error) {
	res, err := p.exec.Run(ctx, fmt.Sprintf("pm2 describe %s 2>/dev/null | grep -q online", app))
	if err != nil {
		return StateUnknown, err
	}
	if res.OK() {
		return StateActive, nil
	}
	return StateInactive, nil
}

func absentEntry(output string) bool {
	out := strings.ToLower(output)
	return strings.Contains(out, "not found") ||
		strings.Contains(out, "doesn't exist") ||
		strings.Contains(out, "does not exist") ||
		strings.Contains(out, "process or namespace not found")
}
