package call

import (
	"context"

	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/models"
	"github.com/shiv6146/buzzer-bridge/internal/telephony"
)

// Resolve decides the answered tenant leg's fate. The first leg to answer
// joins the conference and the opponent's leg is cancelled; a repeated
// callback for the winner joins again without another cancellation, and a
// leg that answered too late is hung up.
func (m *Manager) Resolve(ctx context.Context, s *Session, answering models.PartyRole) models.Decision {
	log := m.logger.With(zap.String("session", s.ID), zap.String("role", string(answering)))

	outcome, loserHandle := s.claim(answering)
	m.metrics.Resolutions.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case claimDuplicate:
		log.Info("duplicate answer callback, no cancellation needed")
		return m.joinImmediately()

	case claimLost:
		log.Info("tenant answered after the race was decided, hanging up", zap.String("winner", string(s.Winner())))
		m.record(ctx, "update leg", func(ctx context.Context) error {
			return m.recorder.UpdateLegStatus(ctx, s.ID, answering, models.LegStatusLost)
		})
		return models.Decision{Kind: models.DecisionTerminate}
	}

	log.Info("tenant answered the buzzer")
	m.record(ctx, "resolve session", func(ctx context.Context) error {
		if err := m.recorder.UpdateLegStatus(ctx, s.ID, answering, models.LegStatusAnswered); err != nil {
			return err
		}
		return m.recorder.ResolveSession(ctx, s.ID, answering)
	})

	loser := answering.Opponent()
	if loserHandle == "" {
		log.Info("no live leg to cancel", zap.String("loser", string(loser)))
	} else {
		m.cancelLeg(ctx, s, loser, loserHandle)
	}

	return m.joinImmediately()
}

// cancelLeg ends a losing leg. Failures are logged only; an uncancelled leg
// times out on its own.
func (m *Manager) cancelLeg(ctx context.Context, s *Session, role models.PartyRole, handle string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.DialTimeout)
	defer cancel()

	log := m.logger.With(zap.String("session", s.ID), zap.String("role", string(role)), zap.String("call_sid", handle))

	if err := m.dialer.CancelCall(ctx, handle); err != nil {
		log.Warn("failed to cancel losing leg", zap.Int("provider_code", telephony.ErrorCode(err)), zap.Error(err))
		m.metrics.Cancellations.WithLabelValues("failed").Inc()
		return
	}

	log.Info("losing leg cancelled")
	m.metrics.Cancellations.WithLabelValues("ok").Inc()
	m.record(ctx, "update leg", func(ctx context.Context) error {
		return m.recorder.UpdateLegStatus(ctx, s.ID, role, models.LegStatusCancelled)
	})
}

func (m *Manager) joinImmediately() models.Decision {
	return models.Decision{
		Kind:       models.DecisionJoinImmediately,
		Conference: m.opts.Conference,
	}
}
