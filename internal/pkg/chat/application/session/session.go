// Package session drives one open conversation: history load, live socket,
// polling while the socket is down, optimistic sends and the error banner.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/auth"
	"go-chatty-client/internal/infrastructure/realtime"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	"go-chatty-client/internal/pkg/chat/application/reconcile"
	"go-chatty-client/internal/pkg/chat/application/usecase"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
)

// Defaults for Config fields left zero.
const (
	DefaultPollInterval  = 5 * time.Second
	DefaultBannerTimeout = 5 * time.Second
)

// Banner texts.
const (
	BannerConnectionLost = "Connection lost. Retrying..."
	BannerBadFrame       = "Received an unreadable update."
	BannerSendFailed     = "Message could not be delivered."
	BannerSessionExpired = "Session expired. Please sign in again."
)

// Metrics is what the session reports; *telemetry.Metrics implements it.
type Metrics interface {
	realtime.Observer
	usecase.SendRecorder
	Reconciled(result string)
	Polled(err error)
	SetPending(n int)
}

// Config tunes a Session.
type Config struct {
	BaseURL        string
	SenderName     string
	PollInterval   time.Duration
	BannerTimeout  time.Duration
	ReconnectDelay time.Duration
	PendingWindow  time.Duration
	Connection     realtime.ConnectionOptions
}

// Option customizes a Session.
type Option func(*Session)

func WithClock(c realtime.Clock) Option { return func(s *Session) { s.clock = c } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m Metrics) Option { return func(s *Session) { s.metrics = m } }

func WithListener(l Listener) Option {
	return func(s *Session) {
		if l != nil {
			s.listener = l
		}
	}
}

// Session holds at most one open conversation. Every open bumps a generation
// counter; results of work started under an older generation are discarded.
type Session struct {
	cfg      Config
	repo     repository.ChatRepository
	tokens   auth.TokenSource
	dialer   realtime.Dialer
	clock    realtime.Clock
	log      *zap.Logger
	metrics  Metrics
	listener Listener
	history  *usecase.GetMessageUseCase

	mu             sync.Mutex
	gen            uint64
	conversationID int64
	timeline       *reconcile.Timeline
	manager        *realtime.Manager
	state          realtime.State
	poll           realtime.Timer
	polling        bool
	banner         string
	bannerTimer    realtime.Timer
}

// New constructs an idle Session.
func New(cfg Config, repo repository.ChatRepository, tokens auth.TokenSource, dialer realtime.Dialer, opts ...Option) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BannerTimeout <= 0 {
		cfg.BannerTimeout = DefaultBannerTimeout
	}
	s := &Session{
		cfg:      cfg,
		repo:     repo,
		tokens:   tokens,
		dialer:   dialer,
		clock:    realtime.SystemClock(),
		log:      zap.NewNop(),
		listener: ListenerFuncs{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = usecase.NewGetMessageUseCase(repo, tokens, s.log)
	return s
}

// Open switches the session to conversationID: the previous conversation is
// torn down first, then history is loaded and the socket connected. A failed
// connect is not an error; polling takes over until the socket recovers.
func (s *Session) Open(ctx context.Context, conversationID int64) error {
	if conversationID <= 0 {
		return fmt.Errorf("%w: conversation id is required", usecase.ErrInvalidInput)
	}
	token := s.tokens.Token()
	if token == "" {
		return chat.ErrAuthRequired
	}

	s.Close()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.conversationID = conversationID
	s.timeline = reconcile.NewTimeline(conversationID,
		reconcile.WithPendingWindow(s.cfg.PendingWindow),
		reconcile.WithClock(s.clock.Now),
		reconcile.WithLogger(s.log),
	)
	s.state = realtime.Disconnected
	s.manager = s.newManager(gen)
	manager := s.manager
	s.mu.Unlock()

	log := s.log.With(zap.Int64("conversation_id", conversationID))
	log.Info("opening conversation")

	if err := s.refresh(ctx, gen); err != nil {
		if isAuth(err) {
			return err
		}
		log.Warn("history unavailable", zap.Error(err))
	}
	if !s.isCurrent(gen) {
		log.Debug("conversation superseded while loading history")
		return nil
	}

	err := manager.Connect(ctx, conversationID, token)
	if isAuth(err) {
		return err
	}
	if err != nil {
		log.Warn("socket unavailable, polling for updates", zap.Error(err))
	}

	s.mu.Lock()
	if gen == s.gen && manager.State() != realtime.Connected {
		s.startPollingLocked(gen)
	}
	s.mu.Unlock()
	return nil
}

// Close tears down the open conversation: socket, poll timer and banner.
// It is safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	s.gen++
	manager := s.manager
	s.manager = nil
	s.timeline = nil
	s.conversationID = 0
	s.state = realtime.Disconnected
	s.polling = false
	realtime.StopTimer(&s.poll)
	hadBanner := s.banner != ""
	s.banner = ""
	realtime.StopTimer(&s.bannerTimer)
	s.mu.Unlock()

	if manager != nil {
		manager.Disconnect()
		s.log.Debug("conversation closed")
	}
	if hadBanner {
		s.listener.OnBanner("")
	}
}

// Send delivers content to the open conversation. The message appears
// immediately as pending; a delivery failure marks it failed and is returned.
func (s *Session) Send(ctx context.Context, content string, replyToID *int64) (chat.Message, error) {
	return s.send(ctx, usecase.SendMessageInput{Content: content, ReplyToID: replyToID})
}

// SendReply sends content as a reply to the message described by to. The
// snapshot is shown as context when that message is not loaded.
func (s *Session) SendReply(ctx context.Context, content string, to chat.ReplySnapshot) (chat.Message, error) {
	return s.send(ctx, usecase.SendMessageInput{Content: content, ReplyTo: &to})
}

func (s *Session) send(ctx context.Context, in usecase.SendMessageInput) (chat.Message, error) {
	s.mu.Lock()
	gen, timeline, manager, conversationID := s.gen, s.timeline, s.manager, s.conversationID
	s.mu.Unlock()
	if timeline == nil {
		return chat.Message{}, chat.ErrNoSession
	}

	uc := usecase.NewSendMessageUseCase(s.repo)
	uc.Timeline = timeline
	uc.Socket = manager
	uc.Tokens = s.tokens
	uc.SenderName = s.cfg.SenderName
	uc.Log = s.log
	if s.metrics != nil {
		uc.Recorder = s.metrics
	}
	uc.OnChange = func() { s.publish(gen) }

	in.ConversationID = conversationID
	msg, err := uc.Execute(ctx, in)
	switch {
	case err == nil, errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, usecase.ErrInvalidInput):
	case isAuth(err):
		s.authFailed(gen, err)
	default:
		s.showBanner(gen, BannerSendFailed)
	}
	return msg, err
}

// Timeline returns the open conversation's messages with reply context resolved.
func (s *Session) Timeline() []reconcile.Entry {
	s.mu.Lock()
	timeline := s.timeline
	s.mu.Unlock()
	if timeline == nil {
		return nil
	}
	return timeline.View()
}

// Find returns a confirmed message of the open conversation.
func (s *Session) Find(id int64) (chat.Message, bool) {
	s.mu.Lock()
	timeline := s.timeline
	s.mu.Unlock()
	if timeline == nil {
		return chat.Message{}, false
	}
	return timeline.Find(id)
}

func (s *Session) State() realtime.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ConversationID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Polling reports whether the history poll loop is active.
func (s *Session) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

// Banner returns the banner text, "" when hidden.
func (s *Session) Banner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

// DismissBanner hides the banner before its timeout.
func (s *Session) DismissBanner() {
	s.mu.Lock()
	had := s.banner != ""
	s.banner = ""
	realtime.StopTimer(&s.bannerTimer)
	s.mu.Unlock()
	if had {
		s.listener.OnBanner("")
	}
}

func (s *Session) newManager(gen uint64) *realtime.Manager {
	opts := []realtime.ManagerOption{
		realtime.WithClock(s.clock),
		realtime.WithLogger(s.log),
	}
	if s.metrics != nil {
		opts = append(opts, realtime.WithObserver(s.metrics))
	}
	return realtime.NewManager(realtime.Config{
		BaseURL:        s.cfg.BaseURL,
		ReconnectDelay: s.cfg.ReconnectDelay,
		Connection:     s.cfg.Connection,
	}, s.dialer, realtime.Handlers{
		OnMessage:     func(m chat.Message) { s.onMessage(gen, m) },
		OnError:       func(err error) { s.onError(gen, err) },
		OnStateChange: func(st realtime.State) { s.onState(gen, st) },
	}, opts...)
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

func (s *Session) currentTimeline(gen uint64) *reconcile.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	return s.timeline
}

func (s *Session) onMessage(gen uint64, m chat.Message) {
	timeline := s.currentTimeline(gen)
	if timeline == nil {
		return
	}
	if timeline.OnServerMessage(m) {
		s.reconciled("appended")
	} else {
		s.reconciled("duplicate")
	}
	s.publish(gen)
}

func (s *Session) onError(gen uint64, err error) {
	if !s.isCurrent(gen) {
		return
	}
	if isAuth(err) {
		s.authFailed(gen, err)
		return
	}

	var serverErr *realtime.ServerError
	var parseErr *realtime.ParseError
	switch {
	case errors.As(err, &serverErr):
		s.showBanner(gen, serverErr.Message)
	case errors.As(err, &parseErr):
		s.showBanner(gen, BannerBadFrame)
	default:
		s.showBanner(gen, BannerConnectionLost)
	}
}

func (s *Session) onState(gen uint64, st realtime.State) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = st
	if st == realtime.Connected {
		s.polling = false
		realtime.StopTimer(&s.poll)
	} else if st == realtime.Failed || st == realtime.Disconnected {
		s.startPollingLocked(gen)
	}
	s.mu.Unlock()

	s.log.Debug("socket state changed", zap.String("state", st.String()))
	s.listener.OnState(st)
	if st == realtime.Connected {
		s.DismissBanner()
	}
}

// startPollingLocked schedules the next poll unless one is already pending.
func (s *Session) startPollingLocked(gen uint64) {
	if s.poll != nil || s.timeline == nil {
		return
	}
	s.polling = true
	s.poll = s.clock.AfterFunc(s.cfg.PollInterval, func() { s.pollOnce(gen) })
}

func (s *Session) pollOnce(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state == realtime.Connected {
		s.mu.Unlock()
		return
	}
	s.poll = nil
	s.mu.Unlock()

	// in-flight results are checked against the generation on arrival
	err := s.refresh(context.Background(), gen)
	if s.metrics != nil {
		s.metrics.Polled(err)
	}
	if isAuth(err) {
		return
	}

	s.mu.Lock()
	if gen == s.gen && s.state != realtime.Connected {
		s.startPollingLocked(gen)
	}
	s.mu.Unlock()
}

// refresh loads history and merges it into the timeline of gen. A failed
// fetch leaves the timeline as is.
func (s *Session) refresh(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	conversationID := s.conversationID
	s.mu.Unlock()

	msgs, err := s.history.Fetch(ctx, usecase.GetMessageInput{ConversationID: conversationID})
	if err != nil {
		if isAuth(err) {
			s.authFailed(gen, err)
		}
		return err
	}

	timeline := s.currentTimeline(gen)
	if timeline == nil {
		return nil
	}
	appended := 0
	for _, m := range msgs {
		if timeline.OnServerMessage(m) {
			appended++
		}
	}
	if appended > 0 {
		s.reconciled("appended")
	}
	s.publish(gen)
	return nil
}

func (s *Session) publish(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.timeline == nil {
		s.mu.Unlock()
		return
	}
	timeline, conversationID := s.timeline, s.conversationID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetPending(timeline.Pending())
	}
	s.listener.OnTimeline(conversationID, timeline.View())
}

func (s *Session) showBanner(gen uint64, text string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.banner = text
	realtime.StopTimer(&s.bannerTimer)
	s.bannerTimer = s.clock.AfterFunc(s.cfg.BannerTimeout, func() { s.expireBanner(gen, text) })
	s.mu.Unlock()

	s.listener.OnBanner(text)
}

func (s *Session) expireBanner(gen uint64, text string) {
	s.mu.Lock()
	if gen != s.gen || s.banner != text {
		s.mu.Unlock()
		return
	}
	s.banner = ""
	s.bannerTimer = nil
	s.mu.Unlock()

	s.listener.OnBanner("")
}

// authFailed closes the conversation after the token was rejected.
func (s *Session) authFailed(gen uint64, err error) {
	if !s.isCurrent(gen) {
		return
	}
	s.tokens.Clear()
	s.log.Warn("authentication rejected, closing conversation", zap.Error(err))
	s.Close()
	s.listener.OnBanner(BannerSessionExpired)
	s.listener.OnAuthFailure(err)
}

func (s *Session) reconciled(result string) {
	if s.metrics != nil {
		s.metrics.Reconciled(result)
	}
}

func isAuth(err error) bool {
	return errors.Is(err, chat.ErrUnauthorized) || errors.Is(err, chat.ErrAuthRequired)
}
