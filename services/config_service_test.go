package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/open-teleop/pantilt/pkg/log"
)

const validRig = `angle_limits:
  min_angle: -65
  max_angle: 65
pan_tilt_units:
  - name: left
    position: [0.1, 0, 0]
    orientation: [0, 0, 0]
    i2c_id: 0
    motors_id: [0, 1]
`

const noUsableUnits = `angle_limits:
  min_angle: -65
  max_angle: 65
pan_tilt_units:
  - name: left
    position: [0.1, 0]
    orientation: [0, 0, 0]
    i2c_id: 0
    motors_id: [0, 1]
`

func newService(t *testing.T) (RigConfigService, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig.yaml")
	if err := os.WriteFile(path, []byte("previous: true\n"), 0644); err != nil {
		t.Fatalf("write rig file: %v", err)
	}
	svc, err := NewRigConfigService(path, log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewRigConfigService: %v", err)
	}
	return svc, path
}

func TestUpdateConfigPersists(t *testing.T) {
	svc, path := newService(t)

	if err := svc.UpdateConfig([]byte(validRig)); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	data, err := svc.GetCurrentConfigYAML()
	if err != nil {
		t.Fatalf("GetCurrentConfigYAML: %v", err)
	}
	if string(data) != validRig {
		t.Errorf("persisted YAML = %q, want the submitted file", data)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the rig file in the directory, found %d entries", len(entries))
	}
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	svc, _ := newService(t)

	for name, body := range map[string]string{
		"not yaml":        "angle_limits: [",
		"no limits":       "pan_tilt_units: []\n",
		"no usable units": noUsableUnits,
	} {
		err := svc.UpdateConfig([]byte(body))
		if !errors.Is(err, ErrInvalidRigConfig) {
			t.Errorf("%s: error = %v, want ErrInvalidRigConfig", name, err)
		}
	}

	data, err := svc.GetCurrentConfigYAML()
	if err != nil {
		t.Fatalf("GetCurrentConfigYAML: %v", err)
	}
	if string(data) != "previous: true\n" {
		t.Errorf("rejected update overwrote the file: %q", data)
	}
}

func TestNewRigConfigServiceNeedsPath(t *testing.T) {
	if _, err := NewRigConfigService("", log.NewNopLogger()); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}
