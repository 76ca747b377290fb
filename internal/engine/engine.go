package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskflow/internal/ai"
	"taskflow/internal/cache"
	"taskflow/internal/config"
	"taskflow/internal/domain"
	"taskflow/internal/engine/auth"
	"taskflow/internal/events"
	"taskflow/internal/notify"
	"taskflow/internal/repo"
)

// Emitter receives events after a mutation has committed. Implementations
// must not block the caller on delivery and never report failures.
type Emitter interface {
	Emit(ctx context.Context, msg events.Message)
}

// Notifier dispatches best-effort user notifications.
type Notifier interface {
	TaskAssigned(ctx context.Context, actor domain.Actor, t domain.Task, userIDs []string)
	TaskCompleted(ctx context.Context, actor domain.Actor, t domain.Task)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Auth   auth.Evaluator
	Events Emitter
	Notify Notifier
	Cache  *cache.Cache
	AI     ai.Client
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

// New wires an engine with SQL-persisted events, stored notifications and
// no AI provider. Callers replace fields to add publishers, a cache or an AI client.
func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	dispatcher := &events.Dispatcher{Writer: &events.Writer{Repo: r}}
	return Engine{
		DB:     db,
		Repo:   r,
		Auth:   auth.Evaluator{Repo: r},
		Events: dispatcher,
		Notify: notify.Service{Repo: r, Emitter: dispatcher},
		AI:     ai.Disabled{},
		Config: cfg,
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) emit(ctx context.Context, msg events.Message) {
	if e.Events == nil {
		return
	}
	if msg.TS == "" {
		msg.TS = e.timestamp()
	}
	e.Events.Emit(ctx, msg)
}

// notFound converts a repo miss into a NotFound domain error.
func notFound(err error, message string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFound(message)
	}
	return err
}

// normalizeDate accepts RFC3339 or YYYY-MM-DD and returns a UTC RFC3339
// string. An empty value clears the date.
func normalizeDate(field string, v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(*v)
	if raw == "" {
		return nil, nil
	}
	var ts time.Time
	var err error
	if len(raw) == len("2006-01-02") {
		ts, err = time.Parse("2006-01-02", raw)
	} else {
		ts, err = time.Parse(time.RFC3339, raw)
	}
	if err != nil {
		return nil, domain.Invalid("Invalid " + field + ": expected RFC3339 or YYYY-MM-DD")
	}
	out := ts.UTC().Format(time.RFC3339)
	return &out, nil
}

func validEnum(values []string, v string) bool {
	return domain.Contains(values, v)
}

func strPtr(s string) *string { return &s }

func ptrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
