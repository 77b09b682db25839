// Package notify drives the lighting notifications that accompany buzzer
// activity. Notifications never influence call control.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Flasher flashes every configured light once
type Flasher interface {
	Flash(ctx context.Context) error
}

const (
	hueBlue = 45455
	hueRed  = 65359
	fullBri = 254
	fullSat = 254
)

// LightState mirrors the state object of a Hue-compatible bridge
type LightState struct {
	On  *bool `json:"on,omitempty"`
	Bri *int  `json:"bri,omitempty"`
	Hue *int  `json:"hue,omitempty"`
	Sat *int  `json:"sat,omitempty"`
}

type lightResponse struct {
	State LightState `json:"state"`
}

// HueFlasher flashes lights through a Hue-compatible bridge REST API.
// Colour lights alternate blue and red, plain lights alternate on and off,
// and each light is returned to its previous state afterwards.
type HueFlasher struct {
	client      *resty.Client
	colorLights []string
	plainLights []string
	logger      *zap.Logger

	Cycles int
	Pause  time.Duration
}

// NewHueFlasher creates a flasher for the bridge at bridgeURL
func NewHueFlasher(bridgeURL, username string, colorLights, plainLights []string, logger *zap.Logger) *HueFlasher {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s/api/%s", bridgeURL, username)).
		SetTimeout(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &HueFlasher{
		client:      client,
		colorLights: colorLights,
		plainLights: plainLights,
		logger:      logger.Named("hue"),
		Cycles:      5,
		Pause:       250 * time.Millisecond,
	}
}

// Flash flashes all lights concurrently and waits for them to be restored
func (h *HueFlasher) Flash(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	run := func(id string, fn func(context.Context, string) error) {
		defer wg.Done()
		if err := fn(ctx, id); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("light %s: %w", id, err))
			mu.Unlock()
		}
	}

	for _, id := range h.colorLights {
		wg.Add(1)
		go run(id, h.flashColor)
	}
	for _, id := range h.plainLights {
		wg.Add(1)
		go run(id, h.flashPlain)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (h *HueFlasher) flashColor(ctx context.Context, id string) error {
	prev, err := h.getState(ctx, id)
	if err != nil {
		return err
	}

	blue := LightState{On: ptr(true), Bri: ptr(fullBri), Sat: ptr(fullSat), Hue: ptr(hueBlue)}
	red := LightState{On: ptr(true), Bri: ptr(fullBri), Sat: ptr(fullSat), Hue: ptr(hueRed)}

	flashErr := h.alternate(ctx, id, blue, red)

	// Restore even when flashing was interrupted
	if err := h.setState(context.WithoutCancel(ctx), id, prev); err != nil {
		return errors.Join(flashErr, err)
	}
	return flashErr
}

func (h *HueFlasher) flashPlain(ctx context.Context, id string) error {
	prev, err := h.getState(ctx, id)
	if err != nil {
		return err
	}

	on := LightState{On: ptr(true), Bri: ptr(fullBri)}
	off := LightState{On: ptr(false)}

	flashErr := h.alternate(ctx, id, on, off)

	restore := LightState{On: ptr(false)}
	if prev.On != nil && *prev.On {
		restore = LightState{On: ptr(true), Bri: prev.Bri}
	}
	if err := h.setState(context.WithoutCancel(ctx), id, restore); err != nil {
		return errors.Join(flashErr, err)
	}
	return flashErr
}

func (h *HueFlasher) alternate(ctx context.Context, id string, first, second LightState) error {
	for i := 0; i < h.Cycles; i++ {
		for _, state := range []LightState{first, second} {
			if err := h.setState(ctx, id, state); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.Pause):
			}
		}
	}
	return nil
}

func (h *HueFlasher) getState(ctx context.Context, id string) (LightState, error) {
	var light lightResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetResult(&light).
		Get("/lights/" + id)
	if err != nil {
		return LightState{}, fmt.Errorf("get state: %w", err)
	}
	if resp.IsError() {
		return LightState{}, fmt.Errorf("get state: bridge returned %s", resp.Status())
	}
	return light.State, nil
}

func (h *HueFlasher) setState(ctx context.Context, id string, state LightState) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(state).
		Put("/lights/" + id + "/state")
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("set state: bridge returned %s", resp.Status())
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
