package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/open-teleop/pantilt/pkg/config"
	customlog "github.com/open-teleop/pantilt/pkg/log"
)

// ErrInvalidRigConfig is returned by UpdateConfig when the new file would not
// load or would leave no usable unit.
var ErrInvalidRigConfig = errors.New("invalid rig configuration")

// RigConfigService defines the interface for reading and replacing the rig file.
type RigConfigService interface {
	GetCurrentConfigYAML() ([]byte, error)
	UpdateConfig(newConfigYAML []byte) error
}

// rigConfigService implements the RigConfigService interface.
// The running nodes keep the configuration they started with; an update is
// persisted and picked up on the next start.
type rigConfigService struct {
	rigConfigPath string
	logger        customlog.Logger
	mu            sync.RWMutex
}

// NewRigConfigService creates a service around the rig file the node was started with.
func NewRigConfigService(rigConfigPath string, logger customlog.Logger) (RigConfigService, error) {
	if rigConfigPath == "" {
		return nil, fmt.Errorf("rig configuration path cannot be empty")
	}
	return &rigConfigService{
		rigConfigPath: rigConfigPath,
		logger:        logger,
	}, nil
}

// GetCurrentConfigYAML returns the rig file as it is on disk.
func (s *rigConfigService) GetCurrentConfigYAML() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.logger.Debugf("Reading rig configuration YAML from: %s", s.rigConfigPath)
	data, err := os.ReadFile(s.rigConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading rig config file '%s': %w", s.rigConfigPath, err)
	}
	return data, nil
}

// UpdateConfig validates the new rig YAML and persists it. At least one unit
// must survive validation.
func (s *rigConfigService) UpdateConfig(newConfigYAML []byte) error {
	newCfg, err := config.ParseConfig(newConfigYAML)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRigConfig, err)
	}
	valid, rejected := newCfg.PartitionUnits()
	for _, e := range rejected {
		s.logger.Warnf("Submitted rig config: %v", e)
	}
	if len(valid) == 0 {
		return fmt.Errorf("%w: no valid pan-tilt units (%d rejected)", ErrInvalidRigConfig, len(rejected))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistConfigUnlocked(newConfigYAML); err != nil {
		return err
	}
	s.logger.Infof("Rig configuration updated with %d units (%d rejected). Restart the nodes to apply it.",
		len(valid), len(rejected))
	return nil
}

// persistConfigUnlocked writes through a temp file so a reader never sees a partial file.
func (s *rigConfigService) persistConfigUnlocked(yamlData []byte) error {
	s.logger.Infof("Persisting rig configuration to: %s", s.rigConfigPath)

	tmp, err := os.CreateTemp(filepath.Dir(s.rigConfigPath), ".rig-*.yaml")
	if err != nil {
		return fmt.Errorf("error writing rig config file '%s': %w", s.rigConfigPath, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(yamlData); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing rig config file '%s': %w", s.rigConfigPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing rig config file '%s': %w", s.rigConfigPath, err)
	}
	if err := os.Rename(tmp.Name(), s.rigConfigPath); err != nil {
		return fmt.Errorf("error writing rig config file '%s': %w", s.rigConfigPath, err)
	}
	return nil
}
