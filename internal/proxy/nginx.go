package proxy

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/elskow/berth/internal/remote"
	"github.com/elskow/berth/internal/runtime"
)

const (
	sitesAvailable = "/etc/nginx/sites-available"
	sitesEnabled   = "/etc/nginx/sites-enabled"
)

var staticTemplate = template.Must(template.New("static").Parse(`server {
    listen 80;
    server_name {{.ServerName}};

    root {{.Root}};
    index index.html;

    location / {
        try_files $uri $uri/ /index.html =404;
    }
}
`))

var proxyTemplate = template.Must(template.New("proxy").Parse(`server {
    listen 80;
    server_name {{.ServerName}};

    location / {
        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
}
`))

// Configurator renders and installs the nginx site for a deployment. The
// site file is keyed on the application identifier, so repeat deploys
// replace the same file and teardown removes exactly what deploy created.
type Configurator struct {
	logger *zap.Logger
}

func NewConfigurator(logger *zap.Logger) *Configurator {
	return &Configurator{logger: logger}
}

// Render branches on one condition only: static profiles get direct file
// serving out of the project directory, everything else gets a reverse
// proxy to the loopback application port.
func (c *Configurator) Render(profile runtime.Profile, serverName string, port int, projectDir string) (string, error) {
	var buf bytes.Buffer
	var err error
	if profile.Kind == runtime.KindStatic {
		err = staticTemplate.Execute(&buf, struct {
			ServerName string
			Root       string
		}{ServerName: serverName, Root: projectDir})
	} else {
		err = proxyTemplate.Execute(&buf, struct {
			ServerName string
			Port       int
		}{ServerName: serverName, Port: port})
	}
	if err != nil {
		return "", fmt.Errorf("failed to render nginx config: %w", err)
	}
	return buf.String(), nil
}

// Install writes the rendered config under the site name, enables it,
// disables the distro default site and validates the nginx configuration.
// Validation failure is fatal and must prevent Reload.
func (c *Configurator) Install(ctx context.Context, exec remote.Executor, site, configText string) error {
	staging := fmt.Sprintf("/tmp/%s.nginx", site)
	if err := remote.Upload(ctx, exec, strings.NewReader(configText), staging, 0o644); err != nil {
		return fmt.Errorf("failed to upload nginx config: %w", err)
	}

	available := fmt.Sprintf("%s/%s", sitesAvailable, site)
	enabled := fmt.Sprintf("%s/%s", sitesEnabled, site)

	cmd := fmt.Sprintf(
		"sudo mv %s %s && sudo ln -sf %s %s && sudo rm -f %s/default",
		staging, available, available, enabled, sitesEnabled)
	res, err := exec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("nginx site install failed (exit %d): %s", res.ExitCode, res.Output)
	}

	if err := c.Validate(ctx, exec); err != nil {
		return err
	}

	c.logger.Info("installed nginx site", zap.String("site", site))
	return nil
}

// Validate runs the nginx configuration test.
func (c *Configurator) Validate(ctx context.Context, exec remote.Executor) error {
	res, err := exec.Run(ctx, "sudo nginx -t")
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("nginx config validation failed: %s", res.Output)
	}
	return nil
}

// Reload asks nginx to pick up the installed site. Callers only reach this
// after Validate has passed.
func (c *Configurator) Reload(ctx context.Context, exec remote.Executor) error {
	res, err := exec.Run(ctx, "sudo systemctl reload nginx")
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("nginx reload failed (exit %d): %s", res.ExitCode, res.Output)
	}
	return nil
}

// Remove deletes the deployment-owned site file and reloads. Both link and
// file may already be gone; that is a success for the teardown path.
func (c *Configurator) Remove(ctx context.Context, exec remote.Executor, site string) error {
	cmd := fmt.Sprintf("sudo rm -f %s/%s %s/%s && sudo systemctl reload nginx",
		sitesEnabled, site, sitesAvailable, site)
	res, err := exec.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("nginx site removal failed (exit %d): %s", res.ExitCode, res.Output)
	}
	return nil
}
