// Package intent holds the per-intent servers that gather slots, decide when
// an intent can run and produce its answer, and the registry they share.
package intent

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/avvvet/tod-intent/internal/catalog"
	"github.com/avvvet/tod-intent/internal/memory"
	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/avvvet/tod-intent/internal/models"
	"github.com/avvvet/tod-intent/internal/tools"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

type State string

const (
	Gathering State = "GATHERING"
	Ready     State = "READY"
	Done      State = "DONE"
	Blocked   State = "BLOCKED"
)

// Input is one turn routed to a server.
type Input struct {
	UserID string
	Turn   models.Message
	Dialog *memory.Dialog
}

// ToolOutput is what RunTools produced.
type ToolOutput struct {
	Results []*tools.Result
	Content string
	Data    map[string]any
}

// Response is the outcome of serving one turn.
type Response struct {
	Intent  string
	State   State
	Message string
	Missing []string
	Slots   map[string]any
	Output  *ToolOutput
}

// Behavior is the intent-specific part of a server.
type Behavior interface {
	// HandleMissingSlots returns the message asking for missing slots.
	HandleMissingSlots(ctx context.Context, s *Server, missing []string, in Input) (string, error)
	RunTools(ctx context.Context, s *Server, in Input) (*ToolOutput, error)
	UseToolOutput(ctx context.Context, s *Server, out *ToolOutput, in Input) (string, error)
}

// SlotValidator is implemented by behaviors that can reject slot values
// before all required slots are gathered.
type SlotValidator interface {
	ValidateSlots(slots map[string]any) error
}

// Server tracks the slots gathered for one intent in one session.
type Server struct {
	intent        catalog.Intent
	catalog       *catalog.Catalog
	behavior      Behavior
	collaborators []string
	registry      *Registry
	metrics       *metrics.Collectors
	logger        *zap.Logger

	mu       sync.Mutex
	gathered map[string]any
	state    State
}

type ServerOption func(*Server)

// WithCollaborators names the intents this server may call as tools.
func WithCollaborators(intents ...string) ServerOption {
	return func(s *Server) { s.collaborators = append(s.collaborators, intents...) }
}

func WithMetrics(m *metrics.Collectors) ServerOption {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(in catalog.Intent, cat *catalog.Catalog, behavior Behavior, opts ...ServerOption) *Server {
	s := &Server{
		intent:   in,
		catalog:  cat,
		behavior: behavior,
		logger:   zap.NewNop(),
		gathered: make(map[string]any),
		state:    Gathering,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("intent", in.Name))
	return s
}

func (s *Server) Intent() catalog.Intent    { return s.intent }
func (s *Server) Catalog() *catalog.Catalog { return s.catalog }

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Gathered returns a copy of the slots gathered so far.
func (s *Server) Gathered() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.gathered)
}

// UpdateSlots merges the slots this intent declares. Others are logged and dropped.
func (s *Server) UpdateSlots(slots map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateSlots(slots)
}

func (s *Server) updateSlots(slots map[string]any) {
	for name, value := range slots {
		if !s.intent.Accepts(name) {
			s.logger.Warn("Slot is not a required or optional slot for intent", zap.String("slot", name))
			continue
		}
		s.gathered[name] = value
	}
}

// MissingSlots returns the required slots not gathered yet, in declaration order.
func (s *Server) MissingSlots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missingSlots()
}

func (s *Server) missingSlots() []string {
	var missing []string
	for _, name := range s.intent.RequiredSlots {
		if _, ok := s.gathered[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// CanContinue reports whether every required slot is gathered.
func (s *Server) CanContinue() (bool, []string) {
	missing := s.MissingSlots()
	return len(missing) == 0, missing
}

// Reset forgets the gathered slots and returns to GATHERING.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gathered = make(map[string]any)
	s.state = Gathering
}

// Serve merges the turn's slots and moves the server forward: it asks for
// missing slots, or runs the tools and answers. Gathered slots are cleared
// once the intent is DONE.
func (s *Server) Serve(ctx context.Context, in Input) (*Response, error) {
	s.logger.Info("🎯 Serving intent", zap.String("user_id", in.UserID), zap.Any("slots", in.Turn.Slots))

	// Rejected values are not kept, so a corrected turn can unblock the intent.
	if v, ok := s.behavior.(SlotValidator); ok {
		s.mu.Lock()
		candidate := maps.Clone(s.gathered)
		s.mu.Unlock()
		for name, value := range in.Turn.Slots {
			if s.intent.Accepts(name) {
				candidate[name] = value
			}
		}
		if err := v.ValidateSlots(candidate); err != nil {
			s.transition(Blocked)
			return &Response{
				Intent:  s.intent.Name,
				State:   Blocked,
				Message: err.Error(),
				Slots:   s.Gathered(),
			}, nil
		}
	}

	s.mu.Lock()
	s.updateSlots(in.Turn.Slots)
	snapshot := maps.Clone(s.gathered)
	missing := s.missingSlots()
	s.mu.Unlock()

	resp := &Response{Intent: s.intent.Name, Slots: snapshot}

	if len(missing) > 0 {
		s.transition(Gathering)
		msg, err := s.behavior.HandleMissingSlots(ctx, s, missing, in)
		if err != nil {
			return nil, fmt.Errorf("%s: asking for missing slots: %w", s.intent.Name, err)
		}
		resp.State = Gathering
		resp.Missing = missing
		resp.Message = msg
		return resp, nil
	}

	s.transition(Ready)
	out, err := s.behavior.RunTools(ctx, s, in)
	if err != nil {
		return nil, fmt.Errorf("%s: running tools: %w", s.intent.Name, err)
	}
	msg, err := s.behavior.UseToolOutput(ctx, s, out, in)
	if err != nil {
		return nil, fmt.Errorf("%s: using tool output: %w", s.intent.Name, err)
	}

	s.transition(Done)
	s.Reset()

	resp.State = Done
	resp.Message = msg
	resp.Output = out
	return resp, nil
}

func (s *Server) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	s.metrics.Transition(s.intent.Name, string(to))
	if from != to {
		s.logger.Debug("Intent state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	}
}

// ToolSchema describes this intent as a callable function.
func (s *Server) ToolSchema() llms.Tool {
	return s.catalog.ToolSchema(s.intent)
}

// Collaborator returns the server of a declared collaborator. Any other
// name, including this server's own intent, is ErrNotCollaborator.
func (s *Server) Collaborator(name string) (*Server, error) {
	if !slices.Contains(s.collaborators, name) {
		return nil, fmt.Errorf("%w: %s cannot call %s", ErrNotCollaborator, s.intent.Name, name)
	}
	if s.registry == nil {
		return nil, fmt.Errorf("%s is not registered: %w", s.intent.Name, ErrServerNotRegistered)
	}
	return s.registry.Server(name)
}

// CollabToolSchemas returns the tool schema of every collaborator, keyed by intent name.
func (s *Server) CollabToolSchemas() (map[string]llms.Tool, error) {
	schemas := make(map[string]llms.Tool, len(s.collaborators))
	for _, name := range s.collaborators {
		collab, err := s.Collaborator(name)
		if err != nil {
			return nil, err
		}
		schemas[name] = collab.ToolSchema()
	}
	return schemas, nil
}
