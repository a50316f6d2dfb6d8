package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elskow/berth/internal/supervisor"
)

const externalProbeTimeout = 10 * time.Second

// validateDeployment confirms the deployment actually works, in order:
// proxy service active, proxy config still valid, supervised process active,
// loopback health probe on the application port, and finally an external
// reachability probe. Only the external probe is best-effort; network
// topology between here and the host is not the deployment's fault.
func (p *Pipeline) validateDeployment(ctx context.Context) error {
	res, err := p.exec.Run(ctx, "systemctl is-active nginx")
	if err != nil {
		return &ValidationError{Check: "proxy service", Err: err}
	}
	if strings.TrimSpace(res.Output) != "active" {
		return &ValidationError{Check: "proxy service", Err: fmt.Errorf("nginx is %q, expected active", res.Output)}
	}

	if err := p.proxy.Validate(ctx, p.exec); err != nil {
		return &ValidationError{Check: "proxy config", Err: err}
	}

	if p.profile.Supervised() && p.super != nil && !p.start.Manual {
		state, err := p.super.Status(ctx, p.cfg.AppName())
		if err != nil {
			return &ValidationError{Check: "supervised process", Err: err}
		}
		if state != supervisor.StateActive {
			return &ValidationError{
				Check: "supervised process",
				Err:   fmt.Errorf("%s is %s, expected active", p.cfg.AppName(), state),
			}
		}

		// internal loopback probe; a deployment whose app does not answer
		// on its own port did not work, so this one is fatal
		probe := fmt.Sprintf(
			"curl -fsS -m 5 -o /dev/null http://127.0.0.1:%[1]d/ || wget -q -T 5 -O /dev/null http://127.0.0.1:%[1]d/",
			p.cfg.App.Port)
		res, err = p.exec.Run(ctx, probe)
		if err != nil {
			return &ValidationError{Check: "internal health probe", Err: err}
		}
		if !res.OK() {
			return &ValidationError{
				Check: "internal health probe",
				Err:   fmt.Errorf("port %d did not answer: %s", p.cfg.App.Port, res.Output),
			}
		}
	}

	p.externalProbe(ctx)
	return nil
}

// externalProbe checks public reachability from the operator's machine.
// Failure is reported, never fatal: firewalls and DNS between here and the
// host are outside the deployment's control.
func (p *Pipeline) externalProbe(ctx context.Context) {
	url := fmt.Sprintf("http://%s/", p.cfg.Remote.Host)

	reqCtx, cancel := context.WithTimeout(ctx, externalProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Warn("external probe skipped", zap.Error(err))
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.record.Append("ExternalProbe", OutcomeWarning, err.Error())
		p.logger.Warn("external reachability probe failed; the deployment may still be fine behind a firewall",
			zap.String("url", url), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		p.record.Append("ExternalProbe", OutcomeWarning, resp.Status)
		p.logger.Warn("external probe got a server error", zap.String("status", resp.Status))
		return
	}

	p.record.Append("ExternalProbe", OutcomeOK, resp.Status)
	p.logger.Info("application reachable externally", zap.String("url", url), zap.String("status", resp.Status))
}
