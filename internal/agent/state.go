package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/quantpilot/trading-backend/pkg/types"
)

// maxMarkers bounds the marker history, in memory and in the state file.
const maxMarkers = 100

// StateStore persists agent state to a single JSON file. Writes go through a
// temp file and rename so a crash mid-write leaves the previous state intact.
type StateStore struct {
	logger *zap.Logger
	path   string
}

// NewStateStore creates a state store at the given path.
func NewStateStore(logger *zap.Logger, path string) *StateStore {
	return &StateStore{logger: logger, path: path}
}

// Load reads the persisted state. A missing file yields the given defaults;
// a corrupt file is reset to defaults with a loud warning rather than
// blocking startup.
func (ss *StateStore) Load(defaults types.AgentState) types.AgentState {
	raw, err := os.ReadFile(ss.path)
	if err != nil {
		if !os.IsNotExist(err) {
			ss.logger.Warn("State file unreadable, starting fresh",
				zap.String("path", ss.path),
				zap.Error(err),
			)
		}
		return defaults
	}

	var state types.AgentState
	if err := json.Unmarshal(raw, &state); err != nil {
		ss.logger.Error("State file corrupt, resetting to defaults",
			zap.String("path", ss.path),
			zap.Error(err),
		)
		if err := ss.Save(defaults); err != nil {
			ss.logger.Error("Failed to write reset state", zap.Error(err))
		}
		return defaults
	}
	return state
}

// Save writes the state atomically, trimming the marker history.
func (ss *StateStore) Save(state types.AgentState) error {
	if len(state.Markers) > maxMarkers {
		state.Markers = state.Markers[len(state.Markers)-maxMarkers:]
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(ss.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(ss.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), ss.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
