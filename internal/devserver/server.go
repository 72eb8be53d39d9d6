package devserver

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pulih-app/coach/domain/repositories"
	"github.com/pulih-app/coach/internal/auth"
)

// Dependencies are the collaborators of the development server
type Dependencies struct {
	Issuer    *auth.Issuer
	Summaries repositories.SummaryRepository
	// Coach writes scripted feedback.
	Coach repositories.FeedbackCoach
	// LLMCoach, when set, serves sessions started with use_llm.
	LLMCoach repositories.FeedbackCoach
	// Speech, when set, voices every feedback item.
	Speech repositories.TextToSpeech
}

// Options tunes the simulated pose engine
type Options struct {
	FramesPerUpdate int
	IdleTimeout     time.Duration
}

// Server is a development coaching server speaking the server side of the
// session protocol with a simulated pose engine
type Server struct {
	deps   Dependencies
	opts   Options
	hub    *Hub
	reaper *Reaper
	now    func() time.Time
	logger *zap.Logger
}

// NewServer creates a development server
func NewServer(deps Dependencies, opts Options, logger *zap.Logger) (*Server, error) {
	if deps.Issuer == nil {
		return nil, errors.New("token issuer is required")
	}
	if deps.Summaries == nil {
		return nil, errors.New("summary repository is required")
	}
	if deps.Coach == nil {
		return nil, errors.New("feedback coach is required")
	}
	if opts.FramesPerUpdate < 1 {
		opts.FramesPerUpdate = 1
	}

	hub := NewHub(logger)
	return &Server{
		deps:   deps,
		opts:   opts,
		hub:    hub,
		reaper: NewReaper(hub, opts.IdleTimeout, logger),
		now:    time.Now,
		logger: logger,
	}, nil
}

// Hub returns the live session registry
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts background maintenance
func (s *Server) Start() {
	s.reaper.Start()
}

// Shutdown stops maintenance and closes every live session
func (s *Server) Shutdown() {
	s.reaper.Stop()
	s.hub.CloseAll()
}

func (s *Server) coachFor(useLLM bool) repositories.FeedbackCoach {
	if useLLM && s.deps.LLMCoach != nil {
		return s.deps.LLMCoach
	}
	return s.deps.Coach
}
