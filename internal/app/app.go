package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	dropleterrors "droplet/internal/errors"
	"droplet/internal/metrics"
	"droplet/internal/ui"
	"droplet/pkg/config"
	"droplet/pkg/runtime"
)

// Orchestrator runs the droplet pipeline: bootstrap, DNS update, pre-run
// sync, service execution and post-run sync.
type Orchestrator struct {
	loader  ConfigLoader
	dns     DNSUpdater
	syncer  RepoSyncer
	runner  runtime.ServiceRunner
	console *ui.Console
}

// New creates an Orchestrator from its collaborators.
func New(loader ConfigLoader, dns DNSUpdater, syncer RepoSyncer, runner runtime.ServiceRunner, console *ui.Console) *Orchestrator {
	return &Orchestrator{
		loader:  loader,
		dns:     dns,
		syncer:  syncer,
		runner:  runner,
		console: console,
	}
}

// stages returns the fixed stage table in execution order.
func (o *Orchestrator) stages() []Stage {
	return []Stage{
		NewDNSStage(o.dns),
		NewPullStage(o.syncer),
		NewServiceStage(o.runner),
		NewPushStage(o.syncer),
	}
}

// Run executes the pipeline for the config file at configPath. The returned
// error is a *errors.StageError for every fatal stage failure; warnings and
// the service's own exit status never produce an error.
func (o *Orchestrator) Run(ctx context.Context, configPath string, flags Flags) error {
	runID := uuid.New().String()
	logger := slog.Default().With("runId", runID)
	logger.Info("Starting droplet run", "configPath", configPath,
		"dns", flags.DNSEnabled(), "pull", flags.PullEnabled(), "push", flags.PushEnabled())

	ws, err := o.bootstrap(configPath)
	if err != nil {
		logger.Error("Bootstrap failed", "error", err)
		return err
	}

	run := &Run{
		ID:        runID,
		Flags:     flags,
		Workspace: ws,
		Console:   o.console,
		Logger:    logger,
	}

	recorder := metrics.NewRecorder()
	err = o.execute(ctx, run, recorder)
	o.writeMetrics(run, recorder)

	if err != nil {
		return err
	}
	logger.Info("Droplet run completed successfully")
	return nil
}

// bootstrap resolves the config path, validates its directory as the base
// for every relative path and loads the configuration.
func (o *Orchestrator) bootstrap(configPath string) (*config.Workspace, error) {
	abs, err := filepath.Abs(configPath)
	if err == nil {
		abs, err = filepath.EvalSymlinks(abs)
	}
	if err != nil {
		return nil, dropleterrors.NewBootstrapError(dropleterrors.ErrConfigUnresolvable,
			fmt.Sprintf("failed to resolve config path %s", configPath), err)
	}

	dir := filepath.Dir(abs)
	if dir == abs {
		return nil, dropleterrors.NewBootstrapError(dropleterrors.ErrConfigNoParent,
			fmt.Sprintf("config path %s has no parent directory", abs), nil)
	}

	info, err := os.Stat(dir)
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", dir)
	}
	if err != nil {
		return nil, dropleterrors.NewBootstrapError(dropleterrors.ErrWorkdirFailed,
			fmt.Sprintf("failed to change directory to %s", dir), err)
	}
	o.console.PrintInfof("changed directory to %s", dir)

	cfg, err := o.loader.Load(abs)
	if err != nil {
		return nil, dropleterrors.NewBootstrapError(dropleterrors.ErrConfigLoadFailed,
			fmt.Sprintf("failed loading config file %s", abs), err)
	}
	o.console.PrintInfo("configuration loaded")

	return &config.Workspace{
		ConfigPath: abs,
		Dir:        dir,
		Config:     cfg,
	}, nil
}

// execute walks the stage table, stopping at the first fatal outcome.
func (o *Orchestrator) execute(ctx context.Context, run *Run, recorder *metrics.Recorder) error {
	for _, stage := range o.stages() {
		outcome := Skipped()
		if stage.Enabled(run.Flags) {
			run.Logger.Debug("Starting stage", "stage", stage.Name())
			outcome = stage.Execute(ctx, run)
		}
		recorder.Stage(stage.Name(), outcome.Kind.String())

		switch outcome.Kind {
		case OutcomeSuccess:
			run.Logger.Info("Stage completed", "stage", stage.Name())
		case OutcomeSkipped:
			run.Logger.Info("Stage skipped", "stage", stage.Name())
		case OutcomeWarning:
			run.Logger.Warn("Stage failed, continuing", "stage", stage.Name(), "error", outcome.Err)
			o.printWarning(outcome.Err)
		case OutcomeFatal:
			run.Logger.Error("Stage failed", "stage", stage.Name(), "error", outcome.Err)
			return outcome.Err
		}
	}
	return nil
}

func (o *Orchestrator) printWarning(err error) {
	var stageErr *dropleterrors.StageError
	if errors.As(err, &stageErr) {
		o.console.PrintWarning(stageErr.Context, stageErr.Suggestion, stageErr.Causes())
		return
	}
	o.console.PrintWarning("", "", dropleterrors.Chain(err))
}

// writeMetrics writes the run's textfile when one is configured. Failures
// are logged and never change the run's result.
func (o *Orchestrator) writeMetrics(run *Run, recorder *metrics.Recorder) {
	textfile := run.Workspace.Config.Metrics.Textfile
	if textfile == "" {
		return
	}

	if run.Exit != nil {
		recorder.ServiceExit(run.Exit.Code, run.Exit.Signal)
	}

	path := run.Workspace.Path(textfile)
	start := time.Now()
	if err := recorder.WriteTextfile(path); err != nil {
		run.Logger.Warn("Failed to write metrics", "path", path, "error", err)
		return
	}
	run.Logger.Debug("Wrote metrics textfile", "path", path, "elapsed", time.Since(start))
}
