package app

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/elskow/berth/internal/config"
	"github.com/elskow/berth/internal/gitsync"
	"github.com/elskow/berth/internal/pipeline"
	"github.com/elskow/berth/internal/proxy"
	"github.com/elskow/berth/internal/remote"
)

// Module wires one deployment run: the validated configuration and run
// logger come from the caller, everything else is derived here.
func Module(cfg *config.DeploymentConfig, logger *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.Provide(
			func(cfg *config.DeploymentConfig, log *zap.Logger) remote.Executor {
				return remote.NewSSHExecutor(cfg.Remote, log)
			},
			func(cfg *config.DeploymentConfig, log *zap.Logger) *gitsync.Syncer {
				return gitsync.NewSyncer(cfg.Repo, cfg.Paths.WorkDir, log)
			},
			proxy.NewConfigurator,
			func(
				cfg *config.DeploymentConfig,
				exec remote.Executor,
				syncer *gitsync.Syncer,
				proxyConf *proxy.Configurator,
				log *zap.Logger,
			) *pipeline.Pipeline {
				return pipeline.New(cfg, exec, syncer, proxyConf, log)
			},
			func(
				cfg *config.DeploymentConfig,
				exec remote.Executor,
				proxyConf *proxy.Configurator,
				log *zap.Logger,
			) *pipeline.Teardown {
				return pipeline.NewTeardown(cfg, exec, proxyConf, cfg.Paths.WorkDir, log)
			},
		),
	)
}
