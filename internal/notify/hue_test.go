package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBridge struct {
	mu     sync.Mutex
	states map[string]LightState
	puts   map[string][]LightState
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		states: map[string]LightState{
			"1": {On: ptr(true), Bri: ptr(120), Hue: ptr(8000), Sat: ptr(100)},
			"2": {On: ptr(false), Bri: ptr(50)},
			"3": {On: ptr(true), Bri: ptr(77)},
		},
		puts: map[string][]LightState{},
	}
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// /api/<user>/lights/<id>[/state]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "testuser" || parts[2] != "lights" {
		http.NotFound(w, r)
		return
	}
	id := parts[3]

	switch r.Method {
	case http.MethodGet:
		state, ok := b.states[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(lightResponse{State: state})
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		var state LightState
		_ = json.Unmarshal(body, &state)
		b.puts[id] = append(b.puts[id], state)
		_, _ = w.Write([]byte(`[{"success":{}}]`))
	}
}

func (b *fakeBridge) putsFor(id string) []LightState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LightState(nil), b.puts[id]...)
}

func newTestFlasher(url string, color, plain []string) *HueFlasher {
	f := NewHueFlasher(url, "testuser", color, plain, zap.NewNop())
	f.Cycles = 2
	f.Pause = time.Millisecond
	return f
}

func TestHueFlasher_ColorLightRestored(t *testing.T) {
	bridge := newFakeBridge()
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	f := newTestFlasher(srv.URL, []string{"1"}, nil)
	require.NoError(t, f.Flash(context.Background()))

	puts := bridge.putsFor("1")
	// 2 cycles of blue+red, then the restore
	require.Len(t, puts, 5)
	assert.Equal(t, hueBlue, *puts[0].Hue)
	assert.Equal(t, hueRed, *puts[1].Hue)

	last := puts[len(puts)-1]
	assert.Equal(t, 8000, *last.Hue)
	assert.Equal(t, 120, *last.Bri)
	assert.Equal(t, 100, *last.Sat)
	assert.True(t, *last.On)
}

func TestHueFlasher_PlainLightsRestored(t *testing.T) {
	bridge := newFakeBridge()
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	f := newTestFlasher(srv.URL, nil, []string{"2", "3"})
	require.NoError(t, f.Flash(context.Background()))

	wasOff := bridge.putsFor("2")
	require.Len(t, wasOff, 5)
	assert.False(t, *wasOff[4].On)
	assert.Nil(t, wasOff[4].Bri)

	wasOn := bridge.putsFor("3")
	require.Len(t, wasOn, 5)
	assert.True(t, *wasOn[4].On)
	assert.Equal(t, 77, *wasOn[4].Bri)
}

func TestHueFlasher_UnknownLight(t *testing.T) {
	bridge := newFakeBridge()
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	f := newTestFlasher(srv.URL, []string{"9"}, []string{"3"})
	err := f.Flash(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "light 9")

	// The healthy light still flashed
	assert.Len(t, bridge.putsFor("3"), 5)
}
