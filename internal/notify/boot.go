package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/shiv6146/buzzer-bridge/internal/telephony"
)

const bootTimeLayout = "2006/01/02 15:04:05"

// BootMessage is the text sent to tenant A when the service starts
func BootMessage(version string, now time.Time) string {
	return fmt.Sprintf("[%s]: Buzzer System %s has booted successfully.", now.Format(bootTimeLayout), version)
}

// AnnounceBoot sends the boot message from the gateway number
func AnnounceBoot(ctx context.Context, m telephony.Messenger, from, to, version string) error {
	if err := m.SendMessage(ctx, to, from, BootMessage(version, time.Now())); err != nil {
		return fmt.Errorf("send boot message: %w", err)
	}
	return nil
}
