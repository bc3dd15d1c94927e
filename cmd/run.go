package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/argus/internal/config"
	"github.com/nextlevelbuilder/argus/internal/orchestrator"
	"github.com/nextlevelbuilder/argus/internal/tracing"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

var errTaskFailed = errors.New("task did not succeed")

// run loads the config, builds the app and executes task, or reads tasks
// interactively when task is empty.
func run(ctx context.Context, task string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if maxRetries > 0 {
		cfg.Orchestrator.MaxRetries = maxRetries
	}

	level, logFile, err := setupLogging(cfg.Log, verbose)
	if err != nil {
		return err
	}
	defer logFile.Close()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %s\n", err)
		fmt.Fprintln(os.Stderr, "Run 'argus doctor' for details.")
		return err
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Headers:     cfg.Telemetry.Headers,
		Version:     Version,
	})
	if err != nil {
		slog.Warn("tracing: setup failed, continuing without export", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing: shutdown", "error", err)
		}
	}()

	a, err := newApp(cfg, autoYes)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.start(ctx)()

	r := newRenderer(a.bus, os.Stdout)
	go r.run(ctx)

	if w, err := config.NewWatcher(cfgPath); err != nil {
		slog.Warn("config: hot reload disabled", "error", err)
	} else {
		w.OnReload(func(c *config.Config) {
			if maxRetries > 0 {
				c.Orchestrator.MaxRetries = maxRetries
			}
			if !verbose {
				level.Set(parseLevel(c.Log.Level))
			}
			a.apply(c)
		})
		if err := w.Start(); err != nil {
			slog.Warn("config: hot reload disabled", "error", err)
		} else {
			defer w.Stop()
		}
	}

	s := &session{app: a, render: r}
	defer s.watchSignals(ctx)()

	if task != "" {
		if out := s.execute(ctx, task); !out.OK() {
			return errTaskFailed
		}
		return nil
	}
	return s.repl(ctx)
}

// session runs tasks one at a time and turns SIGINT into a stop request.
type session struct {
	app    *app
	render *renderer

	running  atomic.Bool
	stopping atomic.Bool
}

func (s *session) execute(ctx context.Context, text string) orchestrator.Outcome {
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := s.app.dispatcher.BeginRun(runID, cancel)
	defer release()

	s.stopping.Store(false)
	s.running.Store(true)
	defer s.running.Store(false)

	slog.Info("argus: task started", "run_id", runID, "force", forceAgent)
	out := s.app.orch.Execute(runCtx, orchestrator.Task{Text: text, Force: forceAgent, MaxRetries: maxRetries})
	slog.Info("argus: task ended", "run_id", runID, "status", out.Status)

	s.render.showResult(ctx, out.String())
	return out
}

func (s *session) repl(ctx context.Context) error {
	fmt.Println(dimStyle.Render("argus " + Version + ". Ctrl+C stops the running task; an empty line exits."))
	for {
		text, err := promptString("Task", "What should argus do?", "")
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" || text == "exit" || text == "quit" {
			return nil
		}
		s.execute(ctx, text)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// watchSignals publishes stop_agent on the first SIGINT of a running task
// and exits on the second, or on any signal while idle. The returned stop
// waits for the watcher to return so the bus can be closed after it.
func (s *session) watchSignals(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	var g errgroup.Group
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case sig := <-ch:
				if sig != os.Interrupt || !s.running.Load() || s.stopping.Swap(true) {
					fmt.Fprintln(os.Stderr, "\nexiting")
					s.app.engine.Close()
					os.Exit(130)
				}
				fmt.Fprintln(os.Stderr, "\nstopping the current task, press Ctrl+C again to exit")
				if err := s.app.bus.PublishInbound(ctx, protocol.NewRequest(protocol.SenderClient, protocol.RequestStopAgent)); err != nil {
					slog.Error("argus: publish stop", "error", err)
				}
			}
		}
	})
	return func() {
		signal.Stop(ch)
		cancel()
		g.Wait()
	}
}
