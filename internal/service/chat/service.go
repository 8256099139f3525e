package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
	"github.com/zhouzirui/astro-tavern/backend/internal/observability"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/ai"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/gateway"
)

const defaultTimezone = "UTC"

// TimezoneResolver resolves coordinates to an IANA timezone identifier.
type TimezoneResolver interface {
	Timezone(ctx context.Context, lat, lon float64) (string, error)
}

// ChartFetcher returns the opaque birth-chart document for a UTC instant.
type ChartFetcher interface {
	BirthChart(ctx context.Context, instant time.Time, lat, lon float64) (json.RawMessage, error)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Store          Store
	Timezones      TimezoneResolver
	Charts         ChartFetcher
	Model          ai.Gateway
	Prompt         *ai.PromptTemplate
	HistoryCeiling int
	ModelTimeout   time.Duration
	// Retention matches the reaper's window; sessions older than it are not written back.
	Retention      time.Duration
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// Service is the chat orchestrator: it resolves sessions, primes new ones with chart
// data and exchanges turns with the model.
type Service struct {
	store        Store
	timezones    TimezoneResolver
	charts       ChartFetcher
	model        ai.Gateway
	prompt       ai.PromptTemplate
	assembler    *Assembler
	modelTimeout time.Duration
	retention    time.Duration
	locks        *keyedMutex
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

// NewService builds the orchestrator.
func NewService(opts Options) *Service {
	prompt := ai.DefaultPromptTemplate()
	if opts.Prompt != nil {
		prompt = *opts.Prompt
	}
	timeout := opts.ModelTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}

	return &Service{
		store:        store,
		timezones:    opts.Timezones,
		charts:       opts.Charts,
		model:        opts.Model,
		prompt:       prompt,
		assembler:    NewAssembler(opts.HistoryCeiling),
		modelTimeout: timeout,
		retention:    retention,
		locks:        newKeyedMutex(),
		logger:       logger,
		metrics:      opts.Metrics,
		now:          time.Now,
	}
}

// Request is one user message plus the birth details the client keeps resending.
type Request struct {
	SessionID    string
	BirthDetails *chat.BirthDetails
	Message      string
}

// Reply carries the model text and the session id the caller must echo back.
type Reply struct {
	Text      string
	SessionID string
}

// HandleMessage runs one conversational exchange. On failure the returned Reply still
// carries the resolved session id when one exists.
func (s *Service) HandleMessage(ctx context.Context, req Request) (Reply, error) {
	if err := ValidateBirthDetails(req.BirthDetails); err != nil {
		s.metrics.ObserveChat("invalid")
		return Reply{}, err
	}

	session, unlock, err := s.resolveSession(ctx, strings.TrimSpace(req.SessionID), *req.BirthDetails)
	if err != nil {
		s.metrics.ObserveChat("failed")
		return Reply{SessionID: session.ID}, err
	}
	defer unlock()

	reply := Reply{SessionID: session.ID}

	session.History = append(session.History, chat.Turn{Speaker: chat.SpeakerUser, Text: req.Message})
	outbound := s.assembler.Context(session.History)

	text, err := s.generate(ctx, session.ID, outbound)
	if err != nil {
		// The user turn stays in history without an answer.
		session.History = s.assembler.Trim(session.History)
		if putErr := s.persist(ctx, session); putErr != nil {
			s.logger.Error("failed to persist session after model failure",
				zap.String("session", session.ID), zap.Error(putErr))
		}
		s.metrics.ObserveChat("failed")
		return reply, err
	}

	session.History = append(session.History, chat.Turn{Speaker: chat.SpeakerModel, Text: text})
	session.History = s.assembler.Trim(session.History)
	if err := s.persist(ctx, session); err != nil {
		s.metrics.ObserveChat("failed")
		return reply, &Failure{Kind: gateway.KindGeneric, Err: fmt.Errorf("persist session: %w", err)}
	}

	s.metrics.ObserveChat("ok")
	reply.Text = text
	return reply, nil
}

// persist writes the session back unless it has aged past retention, in which case
// the reaper may already have removed it and it must stay gone.
func (s *Service) persist(ctx context.Context, session chat.Session) error {
	if session.CreatedAt.Before(s.now().Add(-s.retention)) {
		s.logger.Info("session expired during exchange, not persisting", zap.String("session", session.ID))
		return nil
	}
	return s.store.Put(ctx, session.ID, session)
}

// Transcript returns the organic turns of a stored session.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	session, ok, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Organic(), nil
}

// ActiveSessions counts stored sessions.
func (s *Service) ActiveSessions(ctx context.Context) (int, error) {
	return countSessions(ctx, s.store)
}

// resolveSession returns the session to extend, holding its lock. Unknown ids are not
// adopted: a fresh server-generated id is used for the new conversation instead.
func (s *Service) resolveSession(ctx context.Context, sessionID string, details chat.BirthDetails) (chat.Session, func(), error) {
	requested := sessionID
	if sessionID != "" {
		unlock := s.locks.Lock(sessionID)
		session, ok, err := s.store.Get(ctx, sessionID)
		if err != nil {
			unlock()
			return chat.Session{ID: sessionID}, nil, &Failure{Kind: gateway.KindGeneric, Err: fmt.Errorf("load session: %w", err)}
		}
		if ok {
			s.logger.Debug("using existing session", zap.String("session", sessionID))
			return session, unlock, nil
		}
		unlock()
		s.logger.Info("unknown session id, starting a new conversation", zap.String("requested", sessionID))
	}

	sessionID = s.store.Create()
	unlock := s.locks.Lock(sessionID)
	session, err := s.startSession(ctx, sessionID, details)
	if err != nil {
		unlock()
		// Nothing was stored under the new id, so only the caller's own id is echoed.
		return chat.Session{ID: requested}, nil, err
	}
	return session, unlock, nil
}

// startSession fetches the chart and persists a session holding only the priming pair.
func (s *Service) startSession(ctx context.Context, sessionID string, details chat.BirthDetails) (chat.Session, error) {
	lat, lon := details.Coordinates()

	timezone := s.resolveTimezone(ctx, lat, lon)
	instant, err := ComposeUTCInstant(details.Date, details.Time, timezone)
	if err != nil && timezone != defaultTimezone {
		s.logger.Warn("timezone unusable, falling back to UTC", zap.String("timezone", timezone), zap.Error(err))
		instant, err = ComposeUTCInstant(details.Date, details.Time, defaultTimezone)
	}
	if err != nil {
		return chat.Session{}, &Failure{Kind: gateway.KindGeneric, Err: err}
	}

	s.logger.Info("new session, fetching chart",
		zap.String("session", sessionID),
		zap.String("timezone", timezone),
		zap.Time("instant", instant))

	chartData, err := s.charts.BirthChart(ctx, instant, lat, lon)
	if err != nil {
		kind := gateway.Classify(err)
		s.metrics.GatewayFailure(gateway.Chart, string(kind))
		s.logger.Error("chart fetch failed", zap.String("session", sessionID), zap.Error(err))
		return chat.Session{}, &Failure{Kind: kind, Err: err}
	}
	s.metrics.ChartFetched()

	session := chat.Session{
		ID:           sessionID,
		BirthDetails: details,
		ChartData:    chartData,
		History:      s.prompt.PrimingTurns(chartData),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Put(ctx, sessionID, session); err != nil {
		return chat.Session{}, &Failure{Kind: gateway.KindGeneric, Err: fmt.Errorf("persist session: %w", err)}
	}
	s.metrics.SessionCreated()
	return session.Clone(), nil
}

func (s *Service) resolveTimezone(ctx context.Context, lat, lon float64) string {
	if s.timezones == nil {
		return defaultTimezone
	}
	timezone, err := s.timezones.Timezone(ctx, lat, lon)
	if err != nil || strings.TrimSpace(timezone) == "" {
		s.metrics.GatewayFailure(gateway.Geocode, string(gateway.Classify(err)))
		s.logger.Warn("timezone lookup failed, using UTC", zap.Error(err))
		return defaultTimezone
	}
	return timezone
}

// generate calls the model with a bounded timeout. Empty or malformed replies become
// FallbackReply rather than errors.
func (s *Service) generate(ctx context.Context, sessionID string, turns []chat.Turn) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	started := time.Now()
	text, err := s.model.Generate(callCtx, turns)
	s.metrics.ObserveModelLatency(time.Since(started))

	if errors.Is(err, ai.ErrMalformedResponse) || (err == nil && strings.TrimSpace(text) == "") {
		s.logger.Warn("model returned no usable text, using fallback", zap.String("session", sessionID))
		return FallbackReply, nil
	}
	if err != nil {
		kind := gateway.Classify(err)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = gateway.KindTimeout
		}
		s.metrics.GatewayFailure(gateway.Model, string(kind))
		s.logger.Error("model call failed",
			zap.String("session", sessionID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return "", &Failure{Kind: kind, Err: err}
	}

	s.logger.Info("generated reply", zap.String("session", sessionID), zap.Int("length", len(text)))
	return text, nil
}
