package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/elskow/berth/internal/config"
	"github.com/elskow/berth/internal/proxy"
	"github.com/elskow/berth/internal/remote"
	"github.com/elskow/berth/internal/runtime"
	"github.com/elskow/berth/internal/supervisor"
)

// RepoSyncer brings the local working copy to the tip of the configured
// branch. Satisfied by gitsync.Syncer; tests substitute a fixture.
type RepoSyncer interface {
	Sync(ctx context.Context) error
	WorkDir() string
}

type stageFunc func(ctx context.Context) error

type stage struct {
	name       string
	run        stageFunc
	bestEffort bool
}

// errSkipStage marks a stage that has nothing to do for this runtime; the
// run records it as skipped and moves on.
var errSkipStage = errors.New("nothing to do for this runtime")

// Pipeline drives one deployment run through its fixed stage sequence. A
// fatal stage failure halts the run immediately; cleanup is a separate,
// explicitly invoked pipeline, never chained automatically.
type Pipeline struct {
	cfg    *config.DeploymentConfig
	exec   remote.Executor
	syncer RepoSyncer
	proxy  *proxy.Configurator
	logger *zap.Logger
	record *Record
	client *http.Client

	// derived by ClassifyRuntime; evidence-based profiles are refreshed
	// once more after SyncLocalRepo populates the working copy
	profile  runtime.Profile
	bundle   runtime.Bundle
	start    runtime.StartCommand
	super    supervisor.Supervisor
	detected bool
}

func New(
	cfg *config.DeploymentConfig,
	exec remote.Executor,
	syncer RepoSyncer,
	proxyConf *proxy.Configurator,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		exec:   exec,
		syncer: syncer,
		proxy:  proxyConf,
		logger: logger,
		record: NewRecord(),
		client: http.DefaultClient,
	}
}

// Record exposes the per-run stage audit.
func (p *Pipeline) Record() *Record { return p.record }

// Run executes the deployment. Configuration is validated before any stage
// so that a bad config never touches the remote host.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		p.record.Append("ValidateConfig", OutcomeFailed, err.Error())
		return &ConfigurationError{Reason: err.Error()}
	}

	stages := []stage{
		{name: "ClassifyRuntime", run: p.classifyRuntime},
		{name: "CheckLocalTools", run: p.checkLocalTools},
		{name: "SyncLocalRepo", run: p.syncLocalRepo},
		{name: "CheckRemoteReachable", run: p.checkRemoteReachable},
		{name: "InstallProxyRuntime", run: p.installProxyRuntime},
		{name: "InstallAppRuntime", run: p.installAppRuntime},
		{name: "PrepareTlsPlaceholder", run: p.prepareTLSPlaceholder, bestEffort: true},
		{name: "TransferProject", run: p.transferProject},
		{name: "InstallDependencies", run: p.installDependencies},
		{name: "RegisterSupervisor", run: p.registerSupervisor},
		{name: "StartApplication", run: p.startApplication},
		{name: "ConfigureProxy", run: p.configureProxy},
		{name: "ValidateDeployment", run: p.validateDeployment},
	}

	for _, st := range stages {
		// the only cancellation point: between stages
		if err := ctx.Err(); err != nil {
			p.record.Append(st.name, OutcomeFailed, "interrupted")
			return err
		}

		p.logger.Info("stage starting", zap.String("stage", st.name))
		if err := st.run(ctx); err != nil {
			if errors.Is(err, errSkipStage) {
				p.record.Append(st.name, OutcomeSkipped, "")
				p.logger.Info("stage skipped",
					zap.String("stage", st.name), zap.String("runtime", p.profile.Kind.String()))
				continue
			}
			if st.bestEffort {
				p.record.Append(st.name, OutcomeWarning, err.Error())
				p.logger.Warn("best-effort stage failed, continuing",
					zap.String("stage", st.name), zap.Error(err))
				continue
			}
			p.record.Append(st.name, OutcomeFailed, err.Error())
			p.logger.Error("stage failed", zap.String("stage", st.name), zap.Error(err))
			return &StageError{Stage: st.name, Err: err}
		}
		p.record.Append(st.name, OutcomeOK, "")
		p.logger.Info("stage complete", zap.String("stage", st.name))
	}

	p.record.Append("Done", OutcomeOK, "")
	p.logger.Info("deployment complete",
		zap.String("app", p.cfg.AppName()),
		zap.String("host", p.cfg.Remote.Host),
		zap.String("runtime", p.profile.Kind.String()))
	return nil
}

func (p *Pipeline) derive() {
	p.profile = runtime.Classify(p.cfg.App.Runtime, p.cfg.App.RuntimeVersion, p.syncer.WorkDir())
	p.bundle = runtime.ActionsFor(p.profile, p.cfg.AppName(), p.cfg.App.Port)
	p.super = supervisor.ForProfile(p.profile.Kind, p.exec, p.cfg.Remote.User, p.logger)
}

func (p *Pipeline) classifyRuntime(context.Context) error {
	p.derive()
	kind, ok := runtime.ParseKind(p.cfg.App.Runtime)
	p.detected = !ok || kind == runtime.KindOther

	p.logger.Info("classified runtime",
		zap.String("kind", p.profile.Kind.String()),
		zap.String("version", p.profile.Version),
		zap.Bool("supervised", p.profile.Supervised()))
	return nil
}

func (p *Pipeline) checkLocalTools(context.Context) error {
	if _, err := remote.LoadSigner(p.cfg.Remote.KeyPath); err != nil {
		return &LocalToolError{Tool: "ssh key", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(p.syncer.WorkDir()), 0o755); err != nil {
		return &LocalToolError{Tool: "workspace", Err: err}
	}
	return nil
}

func (p *Pipeline) syncLocalRepo(ctx context.Context) error {
	if err := p.syncer.Sync(ctx); err != nil {
		return err
	}
	// evidence-based classification only becomes meaningful once the
	// working copy exists; a fresh machine has nothing to probe before sync
	if p.detected {
		before := p.profile.Kind
		p.derive()
		if p.profile.Kind != before {
			p.logger.Info("reclassified runtime from synced copy",
				zap.String("kind", p.profile.Kind.String()),
				zap.Bool("supervised", p.profile.Supervised()))
		}
	}
	return nil
}

func (p *Pipeline) checkRemoteReachable(ctx context.Context) error {
	res, err := p.exec.Run(ctx, "echo ok")
	if err != nil {
		return &RemoteUnreachableError{Host: p.exec.Host(), Err: err}
	}
	if !res.OK() {
		return &RemoteUnreachableError{
			Host: p.exec.Host(),
			Err:  fmt.Errorf("probe command exited %d: %s", res.ExitCode, res.Output),
		}
	}
	return nil
}

func (p *Pipeline) installProxyRuntime(ctx context.Context) error {
	res, err := p.exec.Run(ctx,
		"command -v nginx >/dev/null 2>&1 && nginx -v 2>&1 || { "+
			"sudo apt-get update -y -qq && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y -qq nginx; }")
	if err != nil {
		return &ProvisioningError{Step: "nginx install", Err: err}
	}
	if !res.OK() {
		return &ProvisioningError{Step: "nginx install", Err: fmt.Errorf("exit %d: %s", res.ExitCode, res.Output)}
	}
	if res.Output != "" {
		p.logger.Info("proxy runtime present", zap.String("version", res.Output))
	}
	return nil
}

func (p *Pipeline) installAppRuntime(ctx context.Context) error {
	if p.bundle.InstallPackages == "" {
		return errSkipStage
	}
	res, err := p.exec.Run(ctx, p.bundle.InstallPackages)
	if err != nil {
		return &ProvisioningError{Step: "runtime install", Err: err}
	}
	if !res.OK() {
		return &ProvisioningError{Step: "runtime install", Err: fmt.Errorf("exit %d: %s", res.ExitCode, res.Output)}
	}
	if res.Output != "" {
		p.logger.Info("app runtime present", zap.String("version", res.Output))
		p.checkRuntimeVersion(res.Output)
	}
	return nil
}

// checkRuntimeVersion compares the interpreter version the install script
// reported against the requested one. An older interpreter is worth knowing
// about but not worth halting over: the requested version only controls
// which package source the install script picks on a bare host.
func (p *Pipeline) checkRuntimeVersion(output string) {
	want := p.profile.Version
	if want == "" {
		return
	}
	have := runtime.ExtractVersion(output)
	if have == "" {
		return
	}
	if runtime.CompareVersions(have, want) < 0 {
		p.record.Append("CheckRuntimeVersion", OutcomeWarning,
			fmt.Sprintf("installed %s, requested %s", have, want))
		p.logger.Warn("remote runtime older than requested",
			zap.String("installed", have),
			zap.String("requested", want))
	}
}

func (p *Pipeline) prepareTLSPlaceholder(ctx context.Context) error {
	res, err := p.exec.Run(ctx, fmt.Sprintf("sudo mkdir -p /etc/nginx/ssl/%s", p.cfg.AppName()))
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("tls placeholder prep exited %d: %s", res.ExitCode, res.Output)
	}
	return nil
}

func (p *Pipeline) installDependencies(ctx context.Context) error {
	if p.bundle.InstallDependencies == "" {
		return errSkipStage
	}
	cmd := fmt.Sprintf("cd %s && %s", remote.Quote(p.cfg.Paths.ProjectDir), p.bundle.InstallDependencies)
	res, err := p.exec.Run(ctx, cmd)
	if err != nil {
		return &ProvisioningError{Step: "dependency install", Err: err}
	}
	if !res.OK() {
		return &ProvisioningError{Step: "dependency install", Err: fmt.Errorf("exit %d: %s", res.ExitCode, res.Output)}
	}
	return nil
}

func (p *Pipeline) registerSupervisor(ctx context.Context) error {
	p.start = p.bundle.ResolveStart(p.syncer.WorkDir())

	switch {
	case p.start.None:
		return errSkipStage
	case p.start.Manual:
		p.logger.Warn("start command could not be derived; the application must be started manually",
			zap.String("kind", p.profile.Kind.String()))
		return errSkipStage
	}

	if p.super == nil {
		return errSkipStage
	}

	if err := p.super.Register(ctx, p.cfg.AppName(), p.start.Command, p.cfg.Paths.ProjectDir); err != nil {
		return &ProvisioningError{Step: "supervisor registration", Err: err}
	}
	return nil
}

func (p *Pipeline) startApplication(ctx context.Context) error {
	if p.super == nil || p.start.None || p.start.Manual {
		return errSkipStage
	}
	if err := p.super.Start(ctx, p.cfg.AppName()); err != nil {
		return &ProvisioningError{Step: "application start", Err: err}
	}
	return nil
}

func (p *Pipeline) configureProxy(ctx context.Context) error {
	text, err := p.proxy.Render(p.profile, p.cfg.Remote.Host, p.cfg.App.Port, p.cfg.Paths.ProjectDir)
	if err != nil {
		return &ProvisioningError{Step: "proxy render", Err: err}
	}
	if err := p.proxy.Install(ctx, p.exec, p.cfg.AppName(), text); err != nil {
		return &ProvisioningError{Step: "proxy install", Err: err}
	}
	if err := p.proxy.Reload(ctx, p.exec); err != nil {
		return &ProvisioningError{Step: "proxy reload", Err: err}
	}
	return nil
}
