package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	audioplayer "github.com/pulih-app/coach/adapters/audio"
	"github.com/pulih-app/coach/adapters/camera"
	"github.com/pulih-app/coach/adapters/canvas"
	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/internal/audio"
	"github.com/pulih-app/coach/internal/coach"
	"github.com/pulih-app/coach/internal/overlay"
	"github.com/pulih-app/coach/internal/pipeline"
	"github.com/pulih-app/coach/internal/websocket"
)

const ackTimeout = 15 * time.Second

type runOptions struct {
	exercise     string
	frames       string
	snapshots    string
	snapshotRate time.Duration
	audioDir     string
	duration     time.Duration
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a headless coaching session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.exercise == "" {
				return fmt.Errorf("--exercise is required")
			}
			return runSession(cmd.Context(), ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.exercise, "exercise", "e", "", "Exercise id")
	cmd.Flags().StringVar(&opts.frames, "frames", "frames", "Directory of images replayed as the camera")
	cmd.Flags().StringVar(&opts.snapshots, "snapshots", "", "Directory for overlay PNG snapshots")
	cmd.Flags().DurationVar(&opts.snapshotRate, "snapshot-every", 2*time.Second, "Overlay snapshot period")
	cmd.Flags().StringVar(&opts.audioDir, "audio-dir", "", "Directory to save voiced feedback clips")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "End the session after this long (0 runs until the server ends it)")
	return cmd
}

// printer reports session progress on the terminal
type printer struct {
	out io.Writer
	mu  sync.Mutex

	lastState entities.SessionState
	lastRep   int
	summary   *entities.SessionSummary
	reason    coach.EndReason
}

func (p *printer) OnStateChange(s entities.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.State != p.lastState {
		fmt.Fprintf(p.out, "[%s]\n", s.State)
		p.lastState = s.State
	}
	if s.CurrentRep != p.lastRep && s.TotalReps > 0 {
		score := "-"
		if s.LastScore != nil {
			score = fmt.Sprintf("%.0f", *s.LastScore)
		}
		fmt.Fprintf(p.out, "set %d/%d rep %d/%d %-8s score %s (%.0f%%)\n",
			s.CurrentSet, s.TotalSets, s.CurrentRep, s.TotalReps, s.CurrentPhase, score, s.ProgressPercent)
		p.lastRep = s.CurrentRep
	}
}

func (p *printer) OnFeedback(item entities.FeedbackItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	voiced := ""
	if item.HasAudio() {
		voiced = " (voiced)"
	}
	fmt.Fprintf(p.out, "  %s: %s%s\n", item.Kind, item.Text, voiced)
}

func (p *printer) OnEnded(summary *entities.SessionSummary, reason coach.EndReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary, p.reason = summary, reason
}

func (p *printer) report() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "Session ended (%s)\n", p.reason)
	if p.summary == nil {
		return
	}
	fmt.Fprintf(p.out, "  reps %d, average score %.1f, %s\n",
		p.summary.CompletedReps, p.summary.AverageScore, p.summary.Duration().Round(time.Second))
	for _, a := range p.summary.NewAchievements {
		fmt.Fprintf(p.out, "  new achievement: %s\n", a.Name)
	}
}

func runSession(parent context.Context, cc *commandContext, opts runOptions, out io.Writer) error {
	cfg, logger := cc.config, cc.logger

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := cc.catalogClient(ctx)
	if err != nil {
		return err
	}
	exercise, err := client.GetExercise(ctx, opts.exercise)
	if err != nil {
		return err
	}

	groups := cfg.Overlay.Highlight
	if len(groups) == 0 && exercise.Focus != "" {
		groups = []string{exercise.Focus}
	}
	highlight, err := overlay.ResolveHighlight(groups)
	if err != nil {
		return err
	}

	raster, err := canvas.NewRaster(cfg.Capture.Width, cfg.Capture.Height)
	if err != nil {
		return err
	}
	renderer := overlay.NewRenderer(raster, overlay.Options{
		Smoothing: cfg.Overlay.Smoothing,
		Highlight: highlight,
	}, logger)

	if opts.audioDir != "" {
		if err := os.MkdirAll(opts.audioDir, 0o755); err != nil {
			return fmt.Errorf("creating audio dir: %w", err)
		}
	}
	queue := audio.NewQueue(audioplayer.NewTimedPlayer(opts.audioDir, logger), audio.Config{Gap: cfg.Audio.Gap}, logger)

	p := &printer{out: out}
	ctrl := coach.NewController(
		camera.NewDirectoryCamera(opts.frames, logger),
		websocket.NewDialer(cfg.Server.URL, cfg.Server.Token, logger),
		queue,
		renderer,
		p,
		coach.Config{
			UserID:        cfg.Session.UserID,
			UseLLM:        cfg.Session.UseLLM,
			CameraTimeout: cfg.Session.CameraTimeout,
			Pipeline: pipeline.Config{
				TargetFPS: cfg.Capture.TargetFPS,
				Width:     cfg.Capture.Width,
				Height:    cfg.Capture.Height,
			},
		},
		logger,
	)

	fmt.Fprintf(out, "%s: %d sets x %d reps\n", exercise.Name, exercise.Sets, exercise.Reps)
	if _, err := ctrl.Open(ctx, exercise.ID); err != nil {
		return err
	}
	defer ctrl.End()

	if err := waitForAck(ctx, ctrl); err != nil {
		return err
	}
	if err := ctrl.Begin(); err != nil {
		return err
	}

	var deadline <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	var snapshots <-chan time.Time
	if opts.snapshots != "" {
		if err := os.MkdirAll(opts.snapshots, 0o755); err != nil {
			return fmt.Errorf("creating snapshot dir: %w", err)
		}
		ticker := time.NewTicker(opts.snapshotRate)
		defer ticker.Stop()
		snapshots = ticker.C
	}

	interrupted := ctx.Done()
	n := 0
	for {
		select {
		case <-ctrl.Done():
			p.report()
			return nil
		case <-interrupted:
			interrupted = nil
			fmt.Fprintln(out, "Interrupted, ending session")
			ctrl.End()
		case <-deadline:
			deadline = nil
			ctrl.End()
		case <-snapshots:
			n++
			path := filepath.Join(opts.snapshots, fmt.Sprintf("overlay_%04d.png", n))
			if err := raster.SavePNG(path, nil); err != nil {
				logger.Warn("Failed to save snapshot", zap.Error(err))
			}
		}
	}
}

func waitForAck(ctx context.Context, ctrl *coach.Controller) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(ackTimeout)

	for {
		s, live := ctrl.Snapshot()
		if !live {
			return fmt.Errorf("session ended before the server acknowledged it")
		}
		if s.Acknowledged && s.CameraReady {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("server did not acknowledge the session")
		case <-ticker.C:
		}
	}
}
