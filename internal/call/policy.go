package call

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/models"
)

// Notification reasons attached to decisions
const (
	NotifyHold     = "hold"
	NotifySelfTest = "self_test"
)

// Decide maps a classified event to its call-control decision, performing
// the session side effects the scenario requires.
func (m *Manager) Decide(ctx context.Context, ev *models.CallEvent, sc models.Scenario) models.Decision {
	m.metrics.Webhooks.WithLabelValues(string(sc.Kind)).Inc()

	switch sc.Kind {
	case models.ScenarioProbe:
		m.logger.Info("probe without caller, answering with empty document", zap.String("call_sid", ev.CallSID))
		return models.Decision{Kind: models.DecisionEmpty}

	case models.ScenarioPanelOriginated:
		m.logger.Info("buzzer pressed, putting panel on hold", zap.String("call_sid", ev.CallSID))
		session := m.Begin(ctx, ev.CallSID)
		m.InitiateTenantCalls(ctx, session)
		return m.joinOnHold("")

	case models.ScenarioGatewayCallback:
		session, adopted := m.LookupOrAdopt(ctx, ev.SessionID)
		if adopted {
			m.logger.Warn("answer callback for unknown session, racing on a fresh session",
				zap.String("requested_session", ev.SessionID),
				zap.String("session", session.ID),
				zap.String("role", string(sc.Role)),
				zap.String("call_sid", ev.CallSID))
		}
		return m.Resolve(ctx, session, sc.Role)

	case models.ScenarioTenantSelfTest:
		m.logger.Info("tenant self test", zap.String("role", string(sc.Role)), zap.String("call_sid", ev.CallSID))
		d := m.joinOnHold(fmt.Sprintf("Hi %s, all seems to be working!", m.tenantName(sc.Role)))
		d.Notify = NotifySelfTest
		return d
	}

	m.logger.Warn("unknown caller, forwarding to tenant A",
		zap.String("from", ev.From),
		zap.String("call_sid", ev.CallSID))
	return models.Decision{
		Kind:      models.DecisionForward,
		ForwardTo: m.classifier.NumberFor(models.RoleTenantA),
	}
}

// Hold is the decision for the hold endpoint polled while a leg waits
func (m *Manager) Hold() models.Decision {
	return models.Decision{
		Kind:     models.DecisionPlayHold,
		AudioURL: m.opts.RingAudioURL,
		Notify:   NotifyHold,
	}
}

func (m *Manager) joinOnHold(announce string) models.Decision {
	return models.Decision{
		Kind:       models.DecisionJoinOnHold,
		Conference: m.opts.Conference,
		HoldURL:    m.opts.HoldURL,
		Announce:   announce,
	}
}

func (m *Manager) tenantName(role models.PartyRole) string {
	if role == models.RoleTenantB {
		return m.opts.TenantBName
	}
	return m.opts.TenantAName
}
