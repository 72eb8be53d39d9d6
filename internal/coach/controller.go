package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
	"github.com/pulih-app/coach/internal/pipeline"
	"github.com/pulih-app/coach/internal/protocol"
)

// DefaultCameraTimeout bounds camera acquisition.
const DefaultCameraTimeout = 10 * time.Second

// DefaultEndGrace bounds the wait for the server summary after a user end.
const DefaultEndGrace = 2 * time.Second

const sendTimeout = 5 * time.Second

var (
	// ErrCameraUnavailable is returned by Open when the camera cannot be acquired.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrSessionActive is returned by Open while another session is live.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNotConnected is returned by session commands when no session is live.
	ErrNotConnected = errors.New("no active session")
)

// AudioQueue plays voiced feedback
type AudioQueue interface {
	EnqueueBase64(encoded string) error
	StopAll()
}

// Listener observes a session. Callbacks run on the session loop and must not
// call back into the Controller synchronously.
type Listener interface {
	OnStateChange(session entities.Session)
	OnFeedback(item entities.FeedbackItem)
	// OnEnded is called once per session. summary is nil unless the server sent one.
	OnEnded(summary *entities.SessionSummary, reason EndReason)
}

// NopListener ignores all notifications
type NopListener struct{}

func (NopListener) OnStateChange(entities.Session) {}
func (NopListener) OnFeedback(entities.FeedbackItem) {}
func (NopListener) OnEnded(*entities.SessionSummary, EndReason) {}

// Config holds configuration for the controller
type Config struct {
	UserID        string
	UseLLM        bool
	CameraTimeout time.Duration
	// EndGrace is how long a user end waits for session_ended before closing.
	// Negative closes at once.
	EndGrace time.Duration
	Pipeline pipeline.Config
}

// Controller owns the live session: camera, connection, pipeline, overlay and audio
type Controller struct {
	camera   repositories.Camera
	dialer   repositories.Dialer
	audio    AudioQueue
	drawer   Drawer
	listener Listener
	config   Config
	decoder  *protocol.Decoder
	logger   *zap.Logger

	mu      sync.Mutex
	current *liveSession
	opening bool
	last    entities.Session
}

// NewController creates a controller. listener may be nil.
func NewController(
	camera repositories.Camera,
	dialer repositories.Dialer,
	audio AudioQueue,
	drawer Drawer,
	listener Listener,
	config Config,
	logger *zap.Logger,
) *Controller {
	if listener == nil {
		listener = NopListener{}
	}
	if config.CameraTimeout <= 0 {
		config.CameraTimeout = DefaultCameraTimeout
	}
	if config.EndGrace == 0 {
		config.EndGrace = DefaultEndGrace
	}

	return &Controller{
		camera:   camera,
		dialer:   dialer,
		audio:    audio,
		drawer:   drawer,
		listener: listener,
		config:   config,
		decoder:  protocol.NewDecoder(),
		logger:   logger,
	}
}

type command struct {
	ev    Event
	reply chan error
}

// liveSession is the per-session runtime. state is owned by the loop goroutine.
type liveSession struct {
	ctrl     *Controller
	state    entities.Session
	conn     repositories.Connection
	source   repositories.VideoSource
	pipeline *pipeline.Pipeline
	slot     *drawSlot
	logger   *zap.Logger

	exercising atomic.Bool

	events chan command
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	snapMu sync.Mutex
	snap   entities.Session
}

// Open starts a session for an exercise: it acquires the camera, connects and
// sends start. If the camera cannot be acquired nothing is dialed and the
// session stays in preparing.
func (c *Controller) Open(ctx context.Context, exerciseID string) (entities.Session, error) {
	s, session, err := c.open(ctx, exerciseID)
	if err != nil {
		return session, err
	}

	// Outside c.mu: listeners may read Snapshot while the loop notifies.
	if err := s.submit(Event{Kind: EventCameraReady, At: time.Now()}); err != nil {
		return s.snapshot(), err
	}
	return s.snapshot(), nil
}

func (c *Controller) open(ctx context.Context, exerciseID string) (*liveSession, entities.Session, error) {
	session := entities.NewSession(exerciseID, c.config.UserID)
	if err := session.Validate(); err != nil {
		return nil, *session, err
	}

	// The lock only guards the slot; acquiring the camera and dialing can take
	// seconds and must not block Snapshot.
	c.mu.Lock()
	if c.current != nil && !c.current.finished() {
		defer c.mu.Unlock()
		return nil, c.current.snapshot(), ErrSessionActive
	}
	if c.opening {
		defer c.mu.Unlock()
		return nil, c.last, ErrSessionActive
	}
	c.opening = true
	c.last = *session
	c.current = nil
	c.mu.Unlock()

	s, err := c.connect(ctx, session)

	c.mu.Lock()
	c.opening = false
	if s != nil {
		c.current = s
	}
	c.mu.Unlock()

	if err != nil {
		return nil, *session, err
	}

	go s.run()
	go s.read()

	s.logger.Info("Session opened")
	return s, s.snapshot(), nil
}

// connect acquires the camera, dials and sends start
func (c *Controller) connect(ctx context.Context, session *entities.Session) (*liveSession, error) {
	logger := c.logger.With(zap.String("sessionID", session.ID), zap.String("exerciseID", session.ExerciseID))

	source, err := c.acquireCamera(ctx)
	if err != nil {
		logger.Error("Failed to acquire camera", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		source.Stop()
		logger.Error("Failed to connect session", zap.Error(err))
		return nil, fmt.Errorf("failed to connect session: %w", err)
	}

	s := &liveSession{
		ctrl:   c,
		state:  *session,
		conn:   conn,
		source: source,
		logger: logger,
		events: make(chan command),
		done:   make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	pipelineConfig := c.config.Pipeline
	if pipelineConfig.Scheduler == nil {
		pipelineConfig.Scheduler = pipeline.NewTickScheduler(pipeline.DefaultTickInterval)
	}
	s.pipeline, err = pipeline.New(source, conn, s.gate, pipelineConfig, logger)
	if err != nil {
		source.Stop()
		conn.Close()
		s.cancel()
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	if err := s.send(protocol.NewStart(session.ExerciseID, c.config.UserID, c.config.UseLLM)); err != nil {
		source.Stop()
		conn.Close()
		s.cancel()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	s.slot = newDrawSlot(c.drawer)
	s.publish()
	return s, nil
}

func (c *Controller) acquireCamera(ctx context.Context) (repositories.VideoSource, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CameraTimeout)
	defer cancel()

	type result struct {
		source repositories.VideoSource
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		source, err := c.camera.Acquire(ctx)
		ch <- result{source, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && r.source == nil {
			return nil, errors.New("camera returned no source")
		}
		return r.source, r.err
	case <-ctx.Done():
		// A source granted after we gave up must not stay open.
		go func() {
			if r := <-ch; r.err == nil && r.source != nil {
				r.source.Stop()
			}
		}()
		return nil, ctx.Err()
	}
}

// Begin starts exercising. Legal once the camera is ready and the server acknowledged start.
func (c *Controller) Begin() error { return c.submit(EventBegin) }

// Pause suspends frame transmission
func (c *Controller) Pause() error { return c.submit(EventPause) }

// Rest suspends frame transmission for a rest interval
func (c *Controller) Rest() error { return c.submit(EventRest) }

// Resume returns to exercising from paused or resting
func (c *Controller) Resume() error { return c.submit(EventResume) }

// End finishes the session and releases every resource. Ending an ended session is a no-op.
func (c *Controller) End() error {
	err := c.submit(EventEnd)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

func (c *Controller) submit(kind EventKind) error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil {
		return ErrNotConnected
	}
	return s.submit(Event{Kind: kind, At: time.Now()})
}

// Snapshot returns the latest session state and whether it is live
func (c *Controller) Snapshot() (entities.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return c.last, false
	}
	return c.current.snapshot(), !c.current.finished()
}

// Done is closed when the current session has ended and been torn down
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.current.done
}

// PipelineStats returns frame counters of the current session
func (c *Controller) PipelineStats() pipeline.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return pipeline.Stats{}
	}
	return c.current.pipeline.Stats()
}

func (s *liveSession) submit(ev Event) error {
	cmd := command{ev: ev, reply: make(chan error, 1)}

	select {
	case s.events <- cmd:
	case <-s.done:
		return ErrNotConnected
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		// The loop replies before it exits.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrNotConnected
		}
	}
}

func (s *liveSession) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// gate is consulted by the pipeline on every tick
func (s *liveSession) gate() bool {
	if !s.exercising.Load() {
		return false
	}
	select {
	case <-s.conn.Closed():
		return false
	default:
		return true
	}
}

// run is the session event loop. Every state change happens here.
func (s *liveSession) run() {
	defer close(s.done)

	for cmd := range s.events {
		err := s.handle(cmd.ev)
		cmd.reply <- err

		if s.state.State == entities.SessionStateEnded {
			s.logger.Info("Session ended",
				zap.Int("completedRep", s.state.CurrentRep),
				zap.Float64("progress", s.state.ProgressPercent))
			return
		}
	}
}

func (s *liveSession) handle(ev Event) error {
	next, effects, err := Apply(s.state, ev)
	if err != nil {
		s.logger.Debug("Rejected session event", zap.Stringer("event", ev.Kind), zap.Error(err))
		return err
	}

	s.state = next
	s.exercising.Store(next.State == entities.SessionStateExercising)
	s.publish()

	for _, effect := range effects {
		s.execute(effect)
	}
	return nil
}

func (s *liveSession) execute(effect Effect) {
	ctrl := s.ctrl

	switch effect.Kind {
	case EffectSend:
		if err := s.send(effect.Message); err != nil {
			s.logger.Warn("Failed to send message", zap.Error(err))
		}
	case EffectStartPipeline:
		s.pipeline.Start(s.ctx)
	case EffectStopPipeline:
		s.pipeline.Stop()
	case EffectReleaseCamera:
		s.source.Stop()
	case EffectCloseConnection:
		s.conn.Close()
	case EffectFlushAudio:
		ctrl.audio.StopAll()
	case EffectEnqueueAudio:
		if err := ctrl.audio.EnqueueBase64(effect.Audio); err != nil {
			s.logger.Warn("Skipping feedback audio", zap.Error(err))
		}
	case EffectDrawSkeleton:
		s.slot.publish(effect.Pose, effect.SkeletonColor)
	case EffectClearOverlay:
		s.slot.close()
		if drops := s.slot.dropped(); drops > 0 {
			s.logger.Debug("Skeleton updates superseded before drawing", zap.Uint64("dropped", drops))
		}
	case EffectNotifyState:
		ctrl.listener.OnStateChange(s.state)
	case EffectNotifyFeedback:
		ctrl.listener.OnFeedback(*effect.Feedback)
	case EffectAwaitSummary:
		s.awaitSummary()
	case EffectNotifyEnded:
		summary := effect.Summary
		if summary == nil {
			summary = s.state.Summary
		}
		s.cancel()
		ctrl.listener.OnEnded(summary, effect.Reason)
	}
}

// awaitSummary keeps answering events after a user end until the server's
// session_ended arrives, the connection closes or the grace runs out.
func (s *liveSession) awaitSummary() {
	grace := s.ctrl.config.EndGrace
	if grace <= 0 {
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	for {
		select {
		case cmd := <-s.events:
			switch cmd.ev.Kind {
			case EventServerEnded:
				cmd.reply <- nil
				if cmd.ev.Summary != nil {
					s.state.Summary = cmd.ev.Summary
					s.publish()
				}
				return
			case EventConnectionClosed:
				cmd.reply <- nil
				return
			default:
				// Ended is terminal, so this only reports the right error.
				_, _, err := Apply(s.state, cmd.ev)
				cmd.reply <- err
			}
		case <-timer.C:
			s.logger.Debug("No session summary before closing", zap.Duration("grace", grace))
			return
		}
	}
}

func (s *liveSession) send(msg interface{}) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return s.conn.Send(ctx, payload)
}

// read decodes server messages and feeds them to the loop in arrival order
func (s *liveSession) read() {
	for {
		select {
		case data := <-s.conn.Messages():
			s.dispatch(data)

		case <-s.conn.Closed():
			// Messages that arrived before the close still count, session_ended included.
		drain:
			for {
				select {
				case data := <-s.conn.Messages():
					s.dispatch(data)
				default:
					break drain
				}
			}
			if err := s.conn.Err(); err != nil {
				s.logger.Warn("Session connection lost", zap.Error(err))
			}
			s.submit(Event{Kind: EventConnectionClosed, At: time.Now()})
			return

		case <-s.done:
			return
		}
	}
}

func (s *liveSession) dispatch(data []byte) {
	msg, err := s.ctrl.decoder.DecodeServerMessage(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			s.logger.Debug("Ignoring unknown message", zap.Error(err))
			return
		}
		s.logger.Warn("Failed to decode server message", zap.Error(err))
		return
	}

	ev, err := eventFromMessage(msg, time.Now())
	if err != nil {
		s.logger.Warn("Unroutable server message", zap.Error(err))
		return
	}

	if ev.Kind == EventAck {
		s.logger.Info("Session acknowledged", zap.String("message", ev.Message))
	}

	if err := s.submit(ev); err != nil && !errors.Is(err, ErrNotConnected) {
		s.logger.Debug("Server event rejected", zap.Stringer("event", ev.Kind), zap.Error(err))
	}
}

func (s *liveSession) publish() {
	s.snapMu.Lock()
	s.snap = s.state
	s.snapMu.Unlock()
}

func (s *liveSession) snapshot() entities.Session {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}
