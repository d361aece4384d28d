package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fitportal/internal/auth"
	"fitportal/internal/config"
	"fitportal/internal/events"
	"fitportal/internal/notify"
	"fitportal/internal/store"
)

type Deps struct {
	Store      *store.Store
	Tokens     *auth.TokenManager
	Dispatcher *notify.Dispatcher
	Queue      *notify.Queue
	Events     events.Publisher
	Logger     zerolog.Logger
}

type Service struct {
	cfg        config.Config
	st         *store.Store
	tokens     *auth.TokenManager
	dispatcher *notify.Dispatcher
	queue      *notify.Queue
	events     events.Publisher
	log        zerolog.Logger
	now        func() time.Time

	// deliveryMu serializes read-modify-write of a submission's delivery columns.
	deliveryMu sync.Mutex
}

func New(cfg config.Config, deps Deps) *Service {
	if deps.Events == nil {
		deps.Events = events.NoopPublisher{}
	}
	s := &Service{
		cfg:        cfg,
		st:         deps.Store,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		queue:      deps.Queue,
		events:     deps.Events,
		log:        deps.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if s.queue != nil {
		s.queue.OnAttempt(s.recordQueueAttempt)
	}
	return s
}

func (s *Service) Store() *store.Store { return s.st }

// Health reports whether the database answers and which email provider is active.
type Health struct {
	DBErr         error
	EmailProvider string
	Queue         notify.QueueSnapshot
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{EmailProvider: s.dispatcher.Provider().Name()}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	h.DBErr = s.st.Ping(pingCtx)
	if s.queue != nil {
		h.Queue = s.queue.Status()
	}
	return h
}
