// Package routing classifies inbound webhook events into call scenarios
package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shiv6146/buzzer-bridge/internal/models"
)

// ErrMalformedEvent marks events that cannot be routed at all.
var ErrMalformedEvent = errors.New("malformed call event")

// Identities are the four configured telephony parties
type Identities struct {
	Gateway string
	Panel   string
	TenantA string
	TenantB string
}

// Classifier maps inbound call events to scenarios
type Classifier struct {
	ids Identities
}

// NewClassifier creates a new classifier over the configured identities
func NewClassifier(ids Identities) *Classifier {
	return &Classifier{ids: ids}
}

// RoleOf returns the party role a telephony identity belongs to
func (c *Classifier) RoleOf(party string) models.PartyRole {
	party = strings.TrimSpace(party)
	if party == "" {
		return models.RoleUnknown
	}

	switch party {
	case c.ids.Gateway:
		return models.RoleGateway
	case c.ids.Panel:
		return models.RolePanel
	case c.ids.TenantA:
		return models.RoleTenantA
	case c.ids.TenantB:
		return models.RoleTenantB
	}
	return models.RoleUnknown
}

// NumberFor returns the configured identity of a role
func (c *Classifier) NumberFor(role models.PartyRole) string {
	switch role {
	case models.RoleGateway:
		return c.ids.Gateway
	case models.RolePanel:
		return c.ids.Panel
	case models.RoleTenantA:
		return c.ids.TenantA
	case models.RoleTenantB:
		return c.ids.TenantB
	}
	return ""
}

// Classify finds the scenario for an inbound call event
func (c *Classifier) Classify(ev *models.CallEvent) (models.Scenario, error) {
	if ev == nil {
		return models.Scenario{}, fmt.Errorf("%w: no event", ErrMalformedEvent)
	}

	// No originator: a probe, not a call attempt
	if ev.IsProbe() {
		return models.Scenario{Kind: models.ScenarioProbe}, nil
	}

	switch from := c.RoleOf(ev.From); from {
	case models.RoleGateway:
		if strings.TrimSpace(ev.To) == "" {
			return models.Scenario{}, fmt.Errorf("%w: gateway leg without destination", ErrMalformedEvent)
		}
		// Only tenant legs are dialed from the gateway, so any destination
		// other than tenant A is tenant B answering.
		answering := models.RoleTenantB
		if c.RoleOf(ev.To) == models.RoleTenantA {
			answering = models.RoleTenantA
		}
		return models.Scenario{Kind: models.ScenarioGatewayCallback, Role: answering}, nil

	case models.RolePanel:
		return models.Scenario{Kind: models.ScenarioPanelOriginated}, nil

	case models.RoleTenantA, models.RoleTenantB:
		return models.Scenario{Kind: models.ScenarioTenantSelfTest, Role: from}, nil
	}

	// No registered party matched; the default policy applies
	return models.Scenario{Kind: models.ScenarioUnknownCaller}, nil
}
