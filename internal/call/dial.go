package call

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/models"
	"github.com/shiv6146/buzzer-bridge/internal/telephony"
)

// InitiateTenantCalls places the tenant A and tenant B legs concurrently and
// stores their handles in the session. A leg that fails to place yields an
// empty handle; the other leg proceeds on its own.
func (m *Manager) InitiateTenantCalls(ctx context.Context, s *Session) (handleA, handleB string) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	callback := m.callbackURL(s.ID)
	roles := [2]models.PartyRole{models.RoleTenantA, models.RoleTenantB}
	var handles [2]string

	var wg sync.WaitGroup
	for i, role := range roles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i] = m.placeLeg(ctx, s, role, callback)
		}()
	}
	wg.Wait()

	if handles[0] == "" && handles[1] == "" {
		m.logger.Error("no tenant leg could be placed", zap.String("session", s.ID))
	}
	return handles[0], handles[1]
}

func (m *Manager) placeLeg(ctx context.Context, s *Session, role models.PartyRole, callback string) string {
	to := m.classifier.NumberFor(role)
	from := m.classifier.NumberFor(models.RoleGateway)
	log := m.logger.With(zap.String("session", s.ID), zap.String("role", string(role)), zap.String("to", to))

	log.Info("placing tenant call")
	handle, err := m.dialer.PlaceCall(ctx, to, from, callback)

	now := time.Now().UTC()
	leg := &models.LegLog{
		SessionID: s.ID,
		Role:      role,
		To:        to,
		Status:    models.LegStatusPlaced,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err != nil {
		log.Warn("tenant call placement failed", zap.Int("provider_code", telephony.ErrorCode(err)), zap.Error(err))
		m.metrics.OutboundCalls.WithLabelValues(string(role), "failed").Inc()

		msg := err.Error()
		leg.Status = models.LegStatusFailed
		leg.Error = &msg
		m.record(ctx, "record leg", func(ctx context.Context) error { return m.recorder.RecordLeg(ctx, leg) })
		return ""
	}

	m.metrics.OutboundCalls.WithLabelValues(string(role), "placed").Inc()
	leg.CallSID = &handle
	m.record(ctx, "record leg", func(ctx context.Context) error { return m.recorder.RecordLeg(ctx, leg) })

	if !s.storeHandle(role, handle) {
		// The other tenant answered while this leg was still being placed
		log.Info("race already decided, cancelling freshly placed leg", zap.String("call_sid", handle))
		m.cancelLeg(ctx, s, role, handle)
		return ""
	}

	log.Info("tenant call placed", zap.String("call_sid", handle))
	return handle
}
