package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/elskow/berth/internal/remote"
)

const restartDelaySeconds = 5

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{.App}} (managed by berth)
After=network.target

[Service]
Type=simple
User={{.User}}
WorkingDirectory={{.WorkDir}}
ExecStart=/bin/bash -lc {{.Command}}
Restart=always
RestartSec={{.RestartSec}}

[Install]
WantedBy=multi-user.target
`))

// Systemd supervises the application through the host init system. The unit
// file is named after the logical application identifier so repeat deploys
// overwrite the same unit and teardown knows exactly what to remove.
type Systemd struct {
	exec   remote.Executor
	user   string
	logger *zap.Logger
}

func NewSystemd(exec remote.Executor, user string, logger *zap.Logger) *Systemd {
	return &Systemd{exec: exec, user: user, logger: logger}
}

func unitPath(app string) string {
	return fmt.Sprintf("/etc/systemd/system/%s.service", app)
}

// RenderUnit produces the unit file contents for an application.
func (s *Systemd) RenderUnit(app, startCommand, workDir string) (string, error) {
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct {
		App        string
		User       string
		WorkDir    string
		Command    string
		RestartSec int
	}{
		App:        app,
		User:       s.user,
		WorkDir:    workDir,
		Command:    remote.Quote(startCommand),
		RestartSec: restartDelaySeconds,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render unit for %s: %w", app, err)
	}
	return buf.String(), nil
}

func (s *Systemd) Register(ctx context.Context, app, startCommand, workDir string) error {
	unit, err := s.RenderUnit(app, startCommand, workDir)
	if err != nil {
		return err
	}

	// staged through /tmp since the deploy user has no direct write access
	// to /etc/systemd/system
	staging := fmt.Sprintf("/tmp/%s.service", app)
	if err := remote.Upload(ctx, s.exec, strings.NewReader(unit), staging, 0o644); err != nil {
		return fmt.Errorf("failed to upload unit for %s: %w", app, err)
	}

	cmd := fmt.Sprintf("sudo mv %s %s && sudo systemctl daemon-reload && sudo systemctl enable %s",
		staging, unitPath(app), app)
	res, err := s.exec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("unit install for %s failed (exit %d): %s", app, res.ExitCode, res.Output)
	}

	s.logger.Info("registered systemd unit",
		zap.String("app", app),
		zap.String("unit", unitPath(app)))
	return nil
}

func (s *Systemd) Start(ctx context.Context, app string) error {
	res, err := s.exec.Run(ctx, fmt.Sprintf("sudo systemctl restart %s", app))
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("systemctl start of %s failed (exit %d): %s", app, res.ExitCode, res.Output)
	}
	return nil
}

func (s *Systemd) Stop(ctx context.Context, app string) error {
	res, err := s.exec.Run(ctx, fmt.Sprintf("sudo systemctl stop %s", app))
	if err != nil {
		return err
	}
	if !res.OK() && !unitAbsent(res.Output) {
		return fmt.Errorf("systemctl stop of %s failed (exit %d): %s", app, res.ExitCode, res.Output)
	}
	return nil
}

func (s *Systemd) Status(ctx context.Context, app string) (State, error) {
	res, err := s.exec.Run(ctx, fmt.Sprintf("systemctl is-active %s", app))
	if err != nil {
		return StateUnknown, err
	}
	if strings.TrimSpace(res.Output) == "active" {
		return StateActive, nil
	}
	return StateInactive, nil
}

func unitAbsent(output string) bool {
	out := strings.ToLower(output)
	return strings.Contains(out, "not loaded") || strings.Contains(out, "could not be found")
}
