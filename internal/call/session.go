package call

import (
	"sync"
	"time"

	"github.com/shiv6146/buzzer-bridge/internal/models"
)

// claimOutcome is the result of an answered tenant leg claiming a session
type claimOutcome int

const (
	claimWon claimOutcome = iota
	claimDuplicate
	claimLost
)

func (o claimOutcome) String() string {
	switch o {
	case claimWon:
		return "won"
	case claimDuplicate:
		return "duplicate"
	default:
		return "lost"
	}
}

// Session represents one buzzer press end-to-end
type Session struct {
	ID           string
	Conference   string
	PanelCallSID string
	CreatedAt    time.Time

	// mu guards the tenant handles and the race outcome
	mu         sync.Mutex
	handles    map[models.PartyRole]string
	winner     models.PartyRole
	resolvedAt *time.Time
}

func newSession(id, conference, panelCallSID string) *Session {
	return &Session{
		ID:           id,
		Conference:   conference,
		PanelCallSID: panelCallSID,
		CreatedAt:    time.Now().UTC(),
		handles:      make(map[models.PartyRole]string, 2),
	}
}

// storeHandle records the handle of a placed leg. It returns false when the
// race was already decided against role, in which case the caller owns the
// handle and must cancel it.
func (s *Session) storeHandle(role models.PartyRole, handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.winner != "" && s.winner != role {
		return false
	}
	s.handles[role] = handle
	return true
}

// claim resolves the race for an answered leg. The first claimant wins and
// takes the opponent's handle, clearing it so it is cancelled at most once.
func (s *Session) claim(role models.PartyRole) (claimOutcome, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.winner {
	case "":
	case role:
		return claimDuplicate, ""
	default:
		return claimLost, ""
	}

	now := time.Now().UTC()
	s.winner = role
	s.resolvedAt = &now

	loser := role.Opponent()
	handle := s.handles[loser]
	delete(s.handles, loser)
	return claimWon, handle
}

// Handle returns the live handle of a tenant leg, or empty
func (s *Session) Handle(role models.PartyRole) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[role]
}

// Winner returns the tenant that answered first, or empty
func (s *Session) Winner() models.PartyRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	ID           string                      `json:"id"`
	Conference   string                      `json:"conference"`
	PanelCallSID string                      `json:"panel_call_sid"`
	CreatedAt    time.Time                   `json:"created_at"`
	Handles      map[models.PartyRole]string `json:"handles"`
	Winner       models.PartyRole            `json:"winner,omitempty"`
	ResolvedAt   *time.Time                  `json:"resolved_at,omitempty"`
}

// Snapshot copies the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make(map[models.PartyRole]string, len(s.handles))
	for role, h := range s.handles {
		handles[role] = h
	}
	return Snapshot{
		ID:           s.ID,
		Conference:   s.Conference,
		PanelCallSID: s.PanelCallSID,
		CreatedAt:    s.CreatedAt,
		Handles:      handles,
		Winner:       s.winner,
		ResolvedAt:   s.resolvedAt,
	}
}
