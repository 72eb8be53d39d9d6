package devserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	_ "image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/entities"
	"github.com/pulih-app/coach/domain/repositories"
	"github.com/pulih-app/coach/internal/protocol"
)

const (
	sendTimeout     = 5 * time.Second
	feedbackTimeout = 15 * time.Second
	saveTimeout     = 5 * time.Second
)

// session speaks the server side of the coaching protocol over one connection
type session struct {
	id     string
	userID string
	conn   repositories.Connection
	server *Server

	decoder *protocol.Decoder
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	seen   atomic.Int64

	// Owned by the run goroutine.
	exerciseID string
	useLLM     bool
	sim        *simulation
	ended      bool

	feedback sync.WaitGroup
}

func newSession(server *Server, conn repositories.Connection, userID string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	s := &session{
		id:      id,
		userID:  userID,
		conn:    conn,
		server:  server,
		decoder: protocol.NewDecoder(),
		logger:  server.logger.With(zap.String("sessionID", id), zap.String("userID", userID)),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.touch()
	return s
}

func (s *session) touch() {
	s.seen.Store(s.server.now().UnixNano())
}

func (s *session) lastSeen() time.Time {
	return time.Unix(0, s.seen.Load())
}

// run processes client messages until the connection closes
func (s *session) run() {
	s.server.hub.register(s)
	defer func() {
		s.cancel()
		s.feedback.Wait()
		s.conn.Close()
		s.server.hub.unregister(s)
	}()

	for {
		select {
		case data := <-s.conn.Messages():
			s.touch()
			s.handle(data)
		case <-s.conn.Closed():
			// A client ending the session closes right after its last message.
			for {
				select {
				case data := <-s.conn.Messages():
					s.handle(data)
					continue
				default:
				}
				break
			}
			if !s.ended {
				s.logger.Info("Client disconnected", zap.NamedError("cause", s.conn.Err()))
			}
			return
		}
	}
}

func (s *session) handle(data []byte) {
	msg, err := s.decoder.DecodeClientMessage(data)
	if err != nil {
		s.logger.Warn("Rejected client message", zap.Error(err))
		s.send(protocol.NewError(err.Error()))
		return
	}

	if s.ended {
		return
	}

	switch m := msg.(type) {
	case *protocol.StartMessage:
		s.start(m)
	case *protocol.BeginMessage:
		if s.sim == nil {
			s.send(protocol.NewError("session not started"))
			return
		}
		s.send(s.sim.begin())
	case *protocol.FrameMessage:
		s.frame(m)
	case *protocol.ControlMessage:
		s.control(m)
	}
}

func (s *session) start(m *protocol.StartMessage) {
	if s.sim != nil {
		s.send(protocol.NewError("session already started"))
		return
	}

	exercise, ok := Exercises[m.ExerciseID]
	if !ok {
		s.send(protocol.NewError("unknown exercise: " + m.ExerciseID))
		return
	}
	if m.UserID != "" && m.UserID != s.userID {
		s.logger.Warn("Start user differs from token user, using token user", zap.String("startUserID", m.UserID))
	}

	s.exerciseID = exercise.ID
	s.useLLM = m.UseLLM
	s.sim = newSimulation(exercise, s.server.opts.FramesPerUpdate, s.server.now())

	s.logger.Info("Session started",
		zap.String("exerciseID", exercise.ID),
		zap.Bool("useLLM", m.UseLLM))
	s.send(protocol.NewAck("Session started: " + exercise.Name))
}

func (s *session) frame(m *protocol.FrameMessage) {
	if s.sim == nil {
		return
	}
	if err := validateFrame(m); err != nil {
		s.logger.Debug("Invalid frame", zap.Error(err))
		s.send(protocol.NewError("invalid frame"))
		return
	}

	st, ok := s.sim.frame()
	if !ok {
		return
	}
	s.send(st.state)

	if st.repDone {
		s.coach(st.prompt)
	}
	if st.finished {
		s.finish("completed")
	}
}

func validateFrame(m *protocol.FrameMessage) error {
	data, err := m.FrameBytes()
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return errors.New("empty frame")
	}
	return nil
}

func (s *session) control(m *protocol.ControlMessage) {
	if s.sim == nil {
		s.send(protocol.NewError("session not started"))
		return
	}
	if m.Action == protocol.ActionEnd {
		s.finish("user")
		return
	}
	s.logger.Info("Control", zap.String("action", string(m.Action)))
	s.send(s.sim.control(m.Action))
}

// coach generates voiced feedback off the message loop.
func (s *session) coach(prompt repositories.CoachingPrompt) {
	coach := s.server.coachFor(s.useLLM)
	speech := s.server.deps.Speech

	s.feedback.Add(1)
	go func() {
		defer s.feedback.Done()

		ctx, cancel := context.WithTimeout(s.ctx, feedbackTimeout)
		defer cancel()

		item, err := coach.Coach(ctx, prompt)
		if err != nil {
			s.logger.Warn("Failed to generate feedback", zap.Error(err))
			return
		}
		if speech != nil {
			clip, err := speech.Synthesize(ctx, item.Text)
			if err != nil {
				s.logger.Warn("Failed to voice feedback", zap.Error(err))
			} else {
				item.Audio = base64.StdEncoding.EncodeToString(clip)
			}
		}
		if s.ctx.Err() != nil {
			return
		}
		s.send(protocol.NewFeedback(item))
	}()
}

// finish stores the summary, tells the client and closes the connection.
func (s *session) finish(reason string) {
	s.ended = true
	s.cancel()
	s.feedback.Wait()

	now := s.server.now()
	record := entities.SessionRecord{
		SessionID:  s.id,
		UserID:     s.userID,
		ExerciseID: s.exerciseID,
		Summary:    s.sim.summary(now),
		StartedAt:  s.sim.startedAt,
		EndedAt:    now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	history, err := s.server.deps.Summaries.ListByUser(ctx, s.userID)
	if err != nil {
		s.logger.Error("Failed to load session history", zap.Error(err))
	}
	record.Summary.NewAchievements = newAchievements(history, record)

	if err := s.server.deps.Summaries.Save(ctx, &record); err != nil {
		s.logger.Error("Failed to save session summary", zap.Error(err))
	}

	s.logger.Info("Session ended",
		zap.String("reason", reason),
		zap.Int("completedReps", record.Summary.CompletedReps),
		zap.Float64("averageScore", record.Summary.AverageScore))

	s.send(protocol.NewSessionEnded(record.Summary))
	s.conn.Close()
}

func (s *session) send(msg interface{}) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("Failed to encode message", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.conn.Send(ctx, data); err != nil {
		s.logger.Debug("Failed to send message", zap.Error(err))
	}
}
