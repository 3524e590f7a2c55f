package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/services"
)

func TestBroadcasterDeliversToEverySubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()
	require.Equal(t, 2, b.Clients())

	b.Broadcast(EventCommand, map[string]int{"units": 2})

	for i, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case payload := <-ch:
			var evt struct {
				Kind string         `json:"kind"`
				Data map[string]int `json:"data"`
			}
			require.NoError(t, json.Unmarshal(payload, &evt), "subscriber %d", i)
			assert.Equal(t, EventCommand, evt.Kind)
			assert.Equal(t, 2, evt.Data["units"])
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout", i)
		}
	}
}

func TestBroadcasterFullClientMissesEvents(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 100; i++ {
		b.Broadcast(EventMotion, i)
	}
	assert.Len(t, ch, 64)
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Clients())

	// Broadcasting with nobody listening must not panic.
	b.Broadcast(EventCommand, nil)
}

func TestServerRoutes(t *testing.T) {
	app := NewServer("pantilt test", NewBroadcaster(), log.NewNopLogger())

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"online","service":"pantilt test"}`, string(body))

	// A plain GET on the stream is not a websocket upgrade.
	resp, err = app.Test(httptest.NewRequest("GET", "/ws/stream", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

const rigYAML = `angle_limits:
  min_angle: -65
  max_angle: 65
pan_tilt_units:
  - name: left
    position: [0, 0, 0]
    orientation: [0, 0, 0]
    i2c_id: 0
    motors_id: [0, 1]
`

func TestConfigRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rigYAML), 0644))
	svc, err := services.NewRigConfigService(path, log.NewNopLogger())
	require.NoError(t, err)

	app := NewServer("pantilt test", NewBroadcaster(), log.NewNopLogger())
	RegisterConfigRoutes(app, svc, log.NewNopLogger())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/config/rig", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-yaml", resp.Header.Get(fiber.HeaderContentType))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, rigYAML, string(body))

	resp, err = app.Test(httptest.NewRequest("PUT", "/api/v1/config/rig", strings.NewReader("angle_limits: [")))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("PUT", "/api/v1/config/rig", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	updated := strings.Replace(rigYAML, "name: left", "name: right", 1)
	resp, err = app.Test(httptest.NewRequest("PUT", "/api/v1/config/rig", strings.NewReader(updated)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, updated, string(data))
}
