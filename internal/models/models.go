// Package models defines the domain models for buzzer-bridge
package models

import (
	"time"
)

// PartyRole identifies one of the four configured telephony parties
type PartyRole string

const (
	RolePanel   PartyRole = "panel"
	RoleGateway PartyRole = "gateway"
	RoleTenantA PartyRole = "tenant_a"
	RoleTenantB PartyRole = "tenant_b"
	RoleUnknown PartyRole = "unknown"
)

// IsTenant reports whether the role is one of the two answering parties
func (r PartyRole) IsTenant() bool {
	return r == RoleTenantA || r == RoleTenantB
}

// Opponent returns the other tenant role, or RoleUnknown for non-tenants
func (r PartyRole) Opponent() PartyRole {
	switch r {
	case RoleTenantA:
		return RoleTenantB
	case RoleTenantB:
		return RoleTenantA
	default:
		return RoleUnknown
	}
}

// CallEvent is one inbound webhook notification from the telephony provider
type CallEvent struct {
	CallSID    string `form:"CallSid" json:"call_sid"`
	AccountSID string `form:"AccountSid" json:"account_sid"`
	From       string `form:"From" json:"from"`
	To         string `form:"To" json:"to"`
	CallStatus string `form:"CallStatus" json:"call_status"`

	// SessionID is carried on the callback URL of legs this service placed.
	SessionID string `form:"session" json:"session_id,omitempty"`
}

// IsProbe reports whether the event carries no originating party
func (e *CallEvent) IsProbe() bool {
	return e.From == ""
}

// ScenarioKind is the routing category of a classified call event
type ScenarioKind string

const (
	ScenarioGatewayCallback ScenarioKind = "gateway_callback"
	ScenarioPanelOriginated ScenarioKind = "panel_originated"
	ScenarioProbe           ScenarioKind = "probe"
	ScenarioTenantSelfTest  ScenarioKind = "tenant_self_test"
	ScenarioUnknownCaller   ScenarioKind = "unknown_caller"
)

// Scenario is the classifier output. Role is set for GatewayCallback and
// TenantSelfTest.
type Scenario struct {
	Kind ScenarioKind `json:"kind"`
	Role PartyRole    `json:"role,omitempty"`
}

// DecisionKind enumerates the call-control outcomes the response builder renders
type DecisionKind string

const (
	DecisionJoinImmediately DecisionKind = "join_immediately"
	DecisionJoinOnHold      DecisionKind = "join_on_hold"
	DecisionTerminate       DecisionKind = "terminate"
	DecisionForward         DecisionKind = "forward"
	DecisionEmpty           DecisionKind = "empty"
	DecisionPlayHold        DecisionKind = "play_hold"
)

// Decision is the provider-agnostic call-control outcome for one webhook
type Decision struct {
	Kind DecisionKind `json:"kind"`

	Conference string `json:"conference,omitempty"`
	HoldURL    string `json:"hold_url,omitempty"`
	Announce   string `json:"announce,omitempty"`
	ForwardTo  string `json:"forward_to,omitempty"`
	AudioURL   string `json:"audio_url,omitempty"`

	// Notify names the lighting notification to dispatch once the response
	// is decided; empty for none.
	Notify string `json:"notify,omitempty"`
}

// LegStatus is the lifecycle state of one outbound tenant leg
type LegStatus string

const (
	LegStatusPlaced    LegStatus = "placed"
	LegStatusFailed    LegStatus = "failed"
	LegStatusAnswered  LegStatus = "answered"
	LegStatusCancelled LegStatus = "cancelled"
	LegStatusLost      LegStatus = "lost"
)

// SessionLog is the persisted record of one buzzer press
type SessionLog struct {
	ID             string     `json:"id" db:"id"`
	ConferenceName string     `json:"conference_name" db:"conference_name"`
	PanelCallSID   string     `json:"panel_call_sid" db:"panel_call_sid"`
	Winner         *PartyRole `json:"winner,omitempty" db:"winner"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	Legs           []*LegLog  `json:"legs,omitempty" db:"-"`
}

// LegLog is the persisted record of one outbound tenant leg
type LegLog struct {
	SessionID string    `json:"session_id" db:"session_id"`
	Role      PartyRole `json:"role" db:"role"`
	To        string    `json:"to" db:"to_number"`
	CallSID   *string   `json:"call_sid,omitempty" db:"call_sid"`
	Status    LegStatus `json:"status" db:"status"`
	Error     *string   `json:"error,omitempty" db:"error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
