package pantilt

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/pantilt/pkg/config"
	"github.com/open-teleop/pantilt/pkg/geometry"
	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

func intPtr(v int) *int { return &v }

func rig(units ...config.UnitConfig) *config.Config {
	return &config.Config{
		AngleLimits: &config.AngleLimits{MinAngle: -65, MaxAngle: 65},
		Units:       units,
	}
}

func unit(name string, bus int, motors [2]int, position ...float64) config.UnitConfig {
	return config.UnitConfig{
		Name:        name,
		Position:    position,
		Orientation: []float64{0, 0, 0},
		I2CID:       intPtr(bus),
		MotorsID:    []int{motors[0], motors[1]},
	}
}

func TestComputeAllSkipsFailingUnit(t *testing.T) {
	cfg := rig(
		unit("one", 0, [2]int{0, 1}, 0, 0, 0),
		unit("two", 0, [2]int{2, 3}, math.NaN(), 0, 0),
		unit("three", 1, [2]int{0, 1}, 1, 0, 0),
	)
	var logs bytes.Buffer
	registry, err := NewRegistry(cfg, log.NewWriterLogger("warn", &logs))
	require.NoError(t, err)
	require.Len(t, registry.Units(), 3)

	msg, ok := registry.ComputeAll(geometry.Point3D{Z: 2})
	require.True(t, ok)

	names := make([]string, len(msg.Units))
	for i, u := range msg.Units {
		names[i] = u.Unit
	}
	assert.Equal(t, []string{"one", "three"}, names)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "[WAR] Skipping unit this cycle")
	assert.True(t, strings.HasSuffix(lines[0], " unit=two"), lines[0])
}

func TestComputeAllStraightAhead(t *testing.T) {
	registry, err := NewRegistry(rig(unit("solo", 2, [2]int{4, 5}, 0, 0, 0)), log.NewNopLogger())
	require.NoError(t, err)

	msg, ok := registry.ComputeAll(geometry.Point3D{Z: 1.5})
	require.True(t, ok)

	want := protocol.ControlMessage{Units: []protocol.UnitCommand{
		{Unit: "solo", BusID: 2, MotorIDs: [2]int{4, 5}, Pan: 90, Tilt: 90},
	}}
	if diff := cmp.Diff(want, msg, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("ComputeAll mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeAllAppliesSensorFlipAndLimits(t *testing.T) {
	limited := unit("limited", 0, [2]int{0, 1}, 0, 0, 0)
	lo, hi := -20.0, 20.0
	limited.AngleMin, limited.AngleMax = &lo, &hi
	registry, err := NewRegistry(rig(limited), log.NewNopLogger())
	require.NoError(t, err)

	// Sensor +x becomes world -x: a pan of -45 degrees, clamped to -20.
	msg, ok := registry.ComputeAll(geometry.Point3D{X: 1, Z: 1})
	require.True(t, ok)
	assert.InDelta(t, 70.0, msg.Units[0].Pan, 1e-9)
	assert.InDelta(t, 90.0, msg.Units[0].Tilt, 1e-9)
}

func TestComputeAllNoUnitSucceeds(t *testing.T) {
	registry, err := NewRegistry(rig(unit("bad", 0, [2]int{0, 1}, math.Inf(1), 0, 0)), log.NewNopLogger())
	require.NoError(t, err)

	msg, ok := registry.ComputeAll(geometry.Point3D{Z: 1})
	assert.False(t, ok)
	assert.Empty(t, msg.Units)
}

func TestNewRegistryExcludesInvalidUnits(t *testing.T) {
	cfg := rig(
		unit("short", 0, [2]int{0, 1}, 0, 0),
		unit("good", 0, [2]int{0, 1}, 0, 0, 0),
	)
	registry, err := NewRegistry(cfg, log.NewNopLogger())
	require.NoError(t, err)
	require.Len(t, registry.Units(), 1)
	assert.Equal(t, "good", registry.Units()[0].Name)
	assert.Equal(t, []protocol.ServoKey{{BusID: 0, MotorID: 0}, {BusID: 0, MotorID: 1}}, registry.Servos())

	_, err = NewRegistry(rig(unit("short", 0, [2]int{0, 1}, 0)), log.NewNopLogger())
	assert.Error(t, err)
}

func TestUnitsHandler(t *testing.T) {
	cfg := rig(
		unit("one", 0, [2]int{0, 1}, 0.5, 0, 0.1),
		unit("nan", 1, [2]int{0, 1}, math.NaN(), 0, 0),
	)
	registry, err := NewRegistry(cfg, log.NewNopLogger())
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/api/units", registry.UnitsHandler)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/units", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload struct {
		Status string `json:"status"`
		Units  []struct {
			Name     string     `json:"name"`
			Position []*float64 `json:"position"`
			MotorIDs []int      `json:"motors_id"`
		} `json:"units"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "success", payload.Status)
	require.Len(t, payload.Units, 2)
	assert.Equal(t, 0.5, *payload.Units[0].Position[0])
	assert.Nil(t, payload.Units[1].Position[0])
	assert.Equal(t, []int{0, 1}, payload.Units[1].MotorIDs)
}
