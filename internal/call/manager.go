// Package call owns buzzer sessions: it fans out the tenant legs, resolves
// the answering race and decides what each leg is told to do.
package call

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/metrics"
	"github.com/shiv6146/buzzer-bridge/internal/models"
	"github.com/shiv6146/buzzer-bridge/internal/routing"
	"github.com/shiv6146/buzzer-bridge/internal/telephony"
)

// Recorder persists session history
type Recorder interface {
	CreateSession(ctx context.Context, session *models.SessionLog) error
	RecordLeg(ctx context.Context, leg *models.LegLog) error
	UpdateLegStatus(ctx context.Context, sessionID string, role models.PartyRole, status models.LegStatus) error
	ResolveSession(ctx context.Context, sessionID string, winner models.PartyRole) error
}

// Tracker mirrors active sessions to a shared cache
type Tracker interface {
	SetActiveSession(ctx context.Context, sessionID string, data map[string]string) error
	RemoveActiveSession(ctx context.Context, sessionID string) error
}

// Options configures the call flow
type Options struct {
	Conference   string
	WebhookURL   string // absolute URL the tenant legs call back into
	HoldURL      string // absolute URL of the hold endpoint
	RingAudioURL string
	TenantAName  string
	TenantBName  string
	SessionTTL   time.Duration
	DialTimeout  time.Duration

	// CleanupInterval is how often expired sessions are purged; defaults to
	// half the session TTL.
	CleanupInterval time.Duration
}

const recordTimeout = 2 * time.Second

// Manager manages buzzer sessions
type Manager struct {
	opts       Options
	classifier *routing.Classifier
	dialer     telephony.Dialer
	recorder   Recorder
	tracker    Tracker
	metrics    *metrics.Metrics
	logger     *zap.Logger

	sessions *gocache.Cache
	// active maps a conference name to its newest session id
	active map[string]string
	mu     sync.Mutex
}

// NewManager creates a new call manager. recorder and tracker may be nil.
func NewManager(opts Options, classifier *routing.Classifier, dialer telephony.Dialer, recorder Recorder, tracker Tracker, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 10 * time.Minute
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 15 * time.Second
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = opts.SessionTTL / 2
	}

	mgr := &Manager{
		opts:       opts,
		classifier: classifier,
		dialer:     dialer,
		recorder:   recorder,
		tracker:    tracker,
		metrics:    m,
		logger:     logger.Named("call"),
		sessions:   gocache.New(opts.SessionTTL, opts.CleanupInterval),
		active:     make(map[string]string),
	}
	mgr.sessions.OnEvicted(mgr.onEvicted)
	return mgr
}

// Begin creates the session for a panel press and makes it the active
// session of the conference
func (m *Manager) Begin(ctx context.Context, panelCallSID string) *Session {
	session := newSession(uuid.New().String(), m.opts.Conference, panelCallSID)

	m.mu.Lock()
	if prev, ok := m.active[session.Conference]; ok {
		m.logger.Warn("buzzer pressed while a session is still active",
			zap.String("previous_session", prev),
			zap.String("session", session.ID))
	}
	m.active[session.Conference] = session.ID
	m.sessions.Set(session.ID, session, gocache.DefaultExpiration)
	m.mu.Unlock()

	m.metrics.ActiveSessions.Set(float64(m.ActiveCount()))

	m.record(ctx, "create session", func(ctx context.Context) error {
		return m.recorder.CreateSession(ctx, &models.SessionLog{
			ID:             session.ID,
			ConferenceName: session.Conference,
			PanelCallSID:   panelCallSID,
			CreatedAt:      session.CreatedAt,
		})
	})

	if m.tracker != nil {
		if err := m.tracker.SetActiveSession(ctx, session.ID, map[string]string{
			"conference": session.Conference,
			"panel_call": panelCallSID,
			"created_at": session.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			m.logger.Warn("failed to mirror active session", zap.String("session", session.ID), zap.Error(err))
		}
	}

	m.logger.Info("session created", zap.String("session", session.ID), zap.String("panel_call", panelCallSID))
	return session
}

// Lookup finds a session by id. An empty id selects the conference's
// active session.
func (m *Manager) Lookup(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(sessionID)
}

// LookupOrAdopt finds a session like Lookup. When none matches it creates a
// session with no tenant handles under the same address, so every answer
// callback still races for a single conference join.
func (m *Manager) LookupOrAdopt(ctx context.Context, sessionID string) (*Session, bool) {
	m.mu.Lock()
	if s, ok := m.lookupLocked(sessionID); ok {
		m.mu.Unlock()
		return s, false
	}

	id := sessionID
	if id == "" {
		id = uuid.New().String()
		m.active[m.opts.Conference] = id
	}
	session := newSession(id, m.opts.Conference, "")
	m.sessions.Set(id, session, gocache.DefaultExpiration)
	m.mu.Unlock()

	m.metrics.ActiveSessions.Set(float64(m.ActiveCount()))
	m.record(ctx, "adopt session", func(ctx context.Context) error {
		return m.recorder.CreateSession(ctx, &models.SessionLog{
			ID:             session.ID,
			ConferenceName: session.Conference,
			CreatedAt:      session.CreatedAt,
		})
	})
	return session, true
}

func (m *Manager) lookupLocked(sessionID string) (*Session, bool) {
	if sessionID == "" {
		sessionID = m.active[m.opts.Conference]
		if sessionID == "" {
			return nil, false
		}
	}

	v, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Sessions returns snapshots of all sessions, newest first
func (m *Manager) Sessions() []Snapshot {
	items := m.sessions.Items()
	out := make([]Snapshot, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*Session).Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ActiveCount returns the number of unexpired sessions in the table
func (m *Manager) ActiveCount() int {
	return len(m.sessions.Items())
}

// CloseAll drops every session
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions.Flush()
	m.active = make(map[string]string)
	m.metrics.ActiveSessions.Set(0)
	m.logger.Info("all sessions closed")
}

func (m *Manager) onEvicted(id string, v interface{}) {
	session := v.(*Session)

	m.mu.Lock()
	if m.active[session.Conference] == id {
		delete(m.active, session.Conference)
	}
	m.mu.Unlock()

	m.metrics.ActiveSessions.Set(float64(m.ActiveCount()))

	if session.Winner() == "" {
		m.logger.Info("session expired unanswered", zap.String("session", id))
	} else {
		m.logger.Debug("session expired", zap.String("session", id))
	}

	if m.tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := m.tracker.RemoveActiveSession(ctx, id); err != nil {
			m.logger.Warn("failed to remove mirrored session", zap.String("session", id), zap.Error(err))
		}
	}
}

// callbackURL is the answer webhook for a tenant leg of session
func (m *Manager) callbackURL(sessionID string) string {
	u, err := url.Parse(m.opts.WebhookURL)
	if err != nil {
		return m.opts.WebhookURL
	}
	q := u.Query()
	q.Set("session", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}

// record runs a best-effort history write
func (m *Manager) record(ctx context.Context, op string, fn func(context.Context) error) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		m.logger.Warn("failed to record history", zap.String("op", op), zap.Error(err))
	}
}
