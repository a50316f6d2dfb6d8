package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/elskow/berth/internal/app"
	"github.com/elskow/berth/internal/config"
	"github.com/elskow/berth/internal/logger"
	"github.com/elskow/berth/internal/pipeline"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

type cliFlags struct {
	configPath string
	cleanup    bool
	verbose    bool

	repo           string
	token          string
	branch         string
	host           string
	user           string
	key            string
	port           int
	runtimeName    string
	runtimeVersion string
	appName        string
	projectDir     string
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := &cliFlags{}
	code := exitOK

	root := &cobra.Command{
		Use:           "berth",
		Short:         "Deploy an application onto a bare remote host",
		Long: `berth provisions a remote host over SSH and deploys an application onto
it without containers: it classifies the application's runtime, installs the
matching system packages, transfers the source, installs dependencies,
registers a supervised process (or static file serving), configures nginx
and validates reachability. --cleanup reverses a previous deployment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code = execute(cmd, flags)
			if code != exitOK {
				return fmt.Errorf("run failed")
			}
			return nil
		},
	}

	fs := root.Flags()
	fs.StringVarP(&flags.configPath, "config", "c", "", "path to configuration file")
	fs.BoolVar(&flags.cleanup, "cleanup", false, "tear down a previous deployment instead of deploying")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	fs.StringVar(&flags.repo, "repo", "", "repository URL")
	fs.StringVar(&flags.token, "token", "", "repository access token")
	fs.StringVar(&flags.branch, "branch", "", "branch to deploy")
	fs.StringVar(&flags.host, "host", "", "remote host")
	fs.StringVar(&flags.user, "user", "", "remote user")
	fs.StringVar(&flags.key, "key", "", "path to ssh private key")
	fs.IntVar(&flags.port, "port", 0, "application port")
	fs.StringVar(&flags.runtimeName, "runtime", "", "runtime (node|python|ruby|php|static|other|auto)")
	fs.StringVar(&flags.runtimeVersion, "runtime-version", "", "runtime version, e.g. 18 for node 18.x")
	fs.StringVar(&flags.appName, "name", "", "application identifier (default: repository basename)")
	fs.StringVar(&flags.projectDir, "project-dir", "", "remote project directory")

	if err := root.Execute(); err != nil && code == exitOK {
		fmt.Fprintln(os.Stderr, err)
		code = exitFailure
	}
	return code
}

func execute(cmd *cobra.Command, flags *cliFlags) int {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	applyFlagOverrides(cmd, flags, cfg)
	cfg.ApplyDefaults()

	log, logPath, closeLog, err := logger.New(cfg.Paths.LogDir, flags.verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		deploy   *pipeline.Pipeline
		teardown *pipeline.Teardown
	)
	fxApp := fx.New(
		app.Module(cfg, log),
		fx.Populate(&deploy, &teardown),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
	)
	if err := fxApp.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer func() {
		_ = fxApp.Stop(context.Background())
	}()

	if flags.cleanup {
		err = teardown.Run(ctx)
	} else {
		err = deploy.Run(ctx)
	}

	switch {
	case err == nil:
		fmt.Printf("done. full log: %s\n", logPath)
		return exitOK
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "interrupted")
		return exitInterrupted
	default:
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			fmt.Fprintf(os.Stderr, "failed at stage %s: %v\nsee log: %s\n", stageErr.Stage, stageErr.Err, logPath)
		} else {
			fmt.Fprintf(os.Stderr, "%v\nsee log: %s\n", err, logPath)
		}
		return exitFailure
	}
}

// applyFlagOverrides lets explicit CLI flags win over the config file and
// environment for the fields they name.
func applyFlagOverrides(cmd *cobra.Command, flags *cliFlags, cfg *config.DeploymentConfig) {
	set := cmd.Flags().Changed
	if set("repo") {
		cfg.Repo.URL = flags.repo
	}
	if set("token") {
		cfg.Repo.Token = flags.token
	}
	if set("branch") {
		cfg.Repo.Branch = flags.branch
	}
	if set("host") {
		cfg.Remote.Host = flags.host
	}
	if set("user") {
		cfg.Remote.User = flags.user
	}
	if set("key") {
		cfg.Remote.KeyPath = flags.key
	}
	if set("port") {
		cfg.App.Port = flags.port
	}
	if set("runtime") {
		cfg.App.Runtime = flags.runtimeName
	}
	if set("runtime-version") {
		cfg.App.RuntimeVersion = flags.runtimeVersion
	}
	if set("name") {
		cfg.App.Name = flags.appName
	}
	if set("project-dir") {
		cfg.Paths.ProjectDir = flags.projectDir
	}
}
