// Package planner routes a chat message to a scraped fact or a generated answer
// and records the exchange.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/pitwall/internal/intent"
	"github.com/ent0n29/pitwall/internal/llm"
	"github.com/ent0n29/pitwall/internal/memory"
	"github.com/ent0n29/pitwall/internal/observability"
	"github.com/ent0n29/pitwall/internal/policy"
	"github.com/ent0n29/pitwall/internal/scrape"
)

// FallbackText is returned whenever the language model cannot answer.
const FallbackText = "Sorry, I couldn't fetch the answer right now."

// AnonymousUser keys turns from callers that did not identify themselves.
const AnonymousUser = "anonymous"

// Source says where a reply came from.
type Source string

const (
	SourceScraped   Source = "scraped"
	SourceGenerated Source = "generated"
)

// ErrValidation marks requests rejected before any work is done.
var ErrValidation = errors.New("invalid request")

// ValidationError names the offending request field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Classifier decides whether a message needs a live fact.
type Classifier interface {
	Classify(message string) intent.Result
}

// ChampionSource looks up the drivers' champion of season. An empty season
// means the latest one the source knows.
type ChampionSource interface {
	ExtractSeason(ctx context.Context, season string) scrape.Result
}

type Request struct {
	UserID  string
	Message string
	// History is the conversation as the client remembers it. It is used
	// only when the store has nothing for the user.
	History []llm.Message
}

type Reply struct {
	Text     string
	Source   Source
	Category intent.Category
}

type Config struct {
	HistoryTurns    int
	GenerateTimeout time.Duration
	PersistTimeout  time.Duration
	RedactPII       bool
}

type Planner struct {
	classifier Classifier
	champion   ChampionSource
	responder  llm.Responder
	store      memory.ChatStore
	metrics    *observability.Metrics
	logger     *slog.Logger
	cfg        Config
}

// New wires a planner. champion may be nil, in which case champion questions
// are answered by the responder. metrics and logger may be nil.
func New(classifier Classifier, champion ChampionSource, responder llm.Responder, store memory.ChatStore, metrics *observability.Metrics, logger *slog.Logger, cfg Config) (*Planner, error) {
	if classifier == nil || responder == nil || store == nil {
		return nil, errors.New("planner requires classifier, responder and store")
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 5
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 10 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{
		classifier: classifier,
		champion:   champion,
		responder:  responder,
		store:      store,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}, nil
}

// FormatChampion renders a scraped champion answer.
func FormatChampion(season, name string) string {
	return fmt.Sprintf("🏆 The %s Formula 1 World Champion is **%s**!", season, name)
}

// Respond answers one message. The only error it returns is a
// *ValidationError; every upstream or storage failure degrades to a reply.
// Exactly one turn is appended to the store per accepted request.
func (p *Planner) Respond(ctx context.Context, req Request) (Reply, error) {
	start := time.Now()
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Reply{}, &ValidationError{Field: "message"}
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = AnonymousUser
	}

	stageStart := time.Now()
	cls := p.classifier.Classify(message)
	p.metrics.ObserveStage(observability.StageClassify, time.Since(stageStart))
	p.metrics.ObserveClassification(cls.Category.String())

	reply := Reply{Source: SourceGenerated, Category: cls.Category}
	if cls.Category == intent.CategoryCurrentChampion && p.champion != nil {
		if text, ok := p.scrapedAnswer(ctx, userID, cls.Season); ok {
			reply.Text = text
			reply.Source = SourceScraped
		}
	}

	if reply.Source == SourceGenerated {
		var history []llm.Message
		if cls.NeedsHistory {
			history = p.loadHistory(ctx, userID, req.History)
		}
		reply.Text = p.generate(ctx, userID, message, history)
	}

	p.persist(ctx, userID, message, reply.Text)
	p.metrics.ObserveStage(observability.StageRespondTotal, time.Since(start))
	return reply, nil
}

func (p *Planner) scrapedAnswer(ctx context.Context, userID, season string) (string, bool) {
	stageStart := time.Now()
	res := p.champion.ExtractSeason(ctx, season)
	elapsed := time.Since(stageStart)
	p.metrics.ObserveStage(observability.StageExtract, elapsed)
	p.metrics.ObserveExtraction(res.Outcome.String(), res.Cached, elapsed)
	if res.Cached {
		p.metrics.ObserveIndicator("champion_cache_hit")
	}

	switch {
	case res.Outcome == scrape.OutcomeFound && season != "" && res.Key != season:
		p.logger.Info("champion found for another season, falling back to model",
			"user", userID, "asked", season, "found", res.Key)
	case res.Outcome == scrape.OutcomeFound:
		return FormatChampion(res.Key, res.Value), true
	case res.Outcome == scrape.OutcomeFetchError:
		p.logger.Warn("champion fetch failed, falling back to model",
			"user", userID, "error", res.Err)
	default:
		p.logger.Info("champion not found, falling back to model", "user", userID)
	}
	return "", false
}

// loadHistory returns the recent exchange in chronological order, as
// alternating user and assistant messages.
func (p *Planner) loadHistory(ctx context.Context, userID string, clientHistory []llm.Message) []llm.Message {
	turns, err := p.store.ListRecent(ctx, userID, p.cfg.HistoryTurns)
	if err != nil {
		p.logger.Warn("load chat history failed", "user", userID, "error", err)
		p.metrics.ObservePersistError("chat_read")
	}

	history := make([]llm.Message, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- {
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: turns[i].Message},
			llm.Message{Role: llm.RoleAssistant, Content: turns[i].Response},
		)
	}
	history = llm.NormalizeHistory(history, p.cfg.HistoryTurns)
	if len(history) == 0 {
		history = llm.NormalizeHistory(clientHistory, p.cfg.HistoryTurns)
		if len(history) > 0 {
			p.metrics.ObserveIndicator("client_history_used")
		}
	}
	return history
}

func (p *Planner) generate(ctx context.Context, userID, message string, history []llm.Message) string {
	genCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerateTimeout)
	defer cancel()

	stageStart := time.Now()
	text, err := p.responder.Generate(genCtx, message, history)
	elapsed := time.Since(stageStart)
	p.metrics.ObserveStage(observability.StageGenerate, elapsed)
	p.metrics.ObserveGenerate(elapsed)

	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		code := llm.ErrorCode(err)
		p.metrics.ObserveProviderError(llm.ModeOf(p.responder), code)
		p.metrics.ObserveIndicator("fallback_reply")
		p.logger.Error("model call failed", "user", userID, "code", code, "error", err)
		return FallbackText
	}
	return strings.TrimSpace(text)
}

// persist never fails the request. It outlives a canceled caller so a
// disconnected client still leaves a complete log.
func (p *Planner) persist(ctx context.Context, userID, message, response string) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PersistTimeout)
	defer cancel()

	turn := memory.ChatTurn{UserID: userID, Message: message, Response: response}
	if p.cfg.RedactPII {
		turn.Message, turn.Response, turn.PIIRedacted = policy.RedactExchange(message, response)
	}

	stageStart := time.Now()
	err := p.store.Append(persistCtx, turn)
	p.metrics.ObserveStage(observability.StagePersist, time.Since(stageStart))
	if err != nil {
		p.metrics.ObservePersistError("chat")
		p.logger.Error("persist chat turn failed", "user", userID, "error", err)
	}
}
