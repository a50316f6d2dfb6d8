package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/elskow/berth/internal/config"
	"github.com/elskow/berth/internal/proxy"
	"github.com/elskow/berth/internal/remote"
	"github.com/elskow/berth/internal/runtime"
	"github.com/elskow/berth/internal/supervisor"
)

// Teardown reverses a deployment: the supervised entry, the proxy site file
// and the remote project directory all go away. Every stage tolerates its
// target already being absent, so running teardown twice succeeds; the only
// fatal precondition is that the host answers at all.
type Teardown struct {
	cfg     *config.DeploymentConfig
	exec    remote.Executor
	proxy   *proxy.Configurator
	logger  *zap.Logger
	record  *Record
	workDir string
}

func NewTeardown(
	cfg *config.DeploymentConfig,
	exec remote.Executor,
	proxyConf *proxy.Configurator,
	workDir string,
	logger *zap.Logger,
) *Teardown {
	return &Teardown{
		cfg:     cfg,
		exec:    exec,
		proxy:   proxyConf,
		logger:  logger,
		record:  NewRecord(),
		workDir: workDir,
	}
}

func (t *Teardown) Record() *Record { return t.record }

func (t *Teardown) Run(ctx context.Context) error {
	if err := t.cfg.Validate(); err != nil {
		t.record.Append("ValidateConfig", OutcomeFailed, err.Error())
		return &ConfigurationError{Reason: err.Error()}
	}

	res, err := t.exec.Run(ctx, "echo ok")
	if err != nil || !res.OK() {
		if err == nil {
			err = fmt.Errorf("probe command exited %d: %s", res.ExitCode, res.Output)
		}
		t.record.Append("CheckRemoteReachable", OutcomeFailed, err.Error())
		return &StageError{Stage: "CheckRemoteReachable", Err: &RemoteUnreachableError{Host: t.exec.Host(), Err: err}}
	}
	t.record.Append("CheckRemoteReachable", OutcomeOK, "")

	app := t.cfg.AppName()
	profile := runtime.Classify(t.cfg.App.Runtime, t.cfg.App.RuntimeVersion, t.workDir)
	bundle := runtime.ActionsFor(profile, app, t.cfg.App.Port)

	t.bestEffort(ctx, "StopSupervised", func(ctx context.Context) error {
		super := supervisor.ForProfile(profile.Kind, t.exec, t.cfg.Remote.User, t.logger)
		if super == nil {
			return nil
		}
		return super.Stop(ctx, app)
	})

	t.bestEffort(ctx, "UnregisterSupervised", func(ctx context.Context) error {
		if bundle.Teardown == "" {
			return nil
		}
		res, err := t.exec.Run(ctx, bundle.Teardown)
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("teardown script exited %d: %s", res.ExitCode, res.Output)
		}
		return nil
	})

	t.bestEffort(ctx, "RemoveProxySite", func(ctx context.Context) error {
		return t.proxy.Remove(ctx, t.exec, app)
	})

	t.bestEffort(ctx, "RemoveProjectDir", func(ctx context.Context) error {
		res, err := t.exec.Run(ctx, fmt.Sprintf("sudo rm -rf %s", remote.Quote(t.cfg.Paths.ProjectDir)))
		if err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("project dir removal exited %d: %s", res.ExitCode, res.Output)
		}
		return nil
	})

	t.record.Append("Done", OutcomeOK, "")
	t.logger.Info("teardown complete", zap.String("app", app), zap.String("host", t.cfg.Remote.Host))
	return nil
}

func (t *Teardown) bestEffort(ctx context.Context, name string, fn stageFunc) {
	t.logger.Info("stage starting", zap.String("stage", name))
	if err := fn(ctx); err != nil {
		t.record.Append(name, OutcomeWarning, err.Error())
		t.logger.Warn("best-effort stage failed, continuing", zap.String("stage", name), zap.Error(err))
		return
	}
	t.record.Append(name, OutcomeOK, "")
}
