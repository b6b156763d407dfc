package params

import (
	"bytes"
	"encoding/json"
	"fmt"

	"roundledger/config"
	"roundledger/native/rounds"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for owner-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

func (s *Store) load(key string, out interface{}) (bool, error) {
	state, err := s.withState()
	if err != nil {
		return false, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("params: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) save(key string, value interface{}) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("params: encode %s: %w", key, err)
	}
	return state.ParamStoreSet(key, encoded)
}

// SetPauses persists the supplied pause configuration under the canonical
// parameter store key.
func (s *Store) SetPauses(pauses config.Pauses) error {
	return s.save(ParamsKeyPauses, pauses)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (config.Pauses, error) {
	var pauses config.Pauses
	if _, err := s.load(ParamsKeyPauses, &pauses); err != nil {
		return config.Pauses{}, err
	}
	return pauses, nil
}

// SetRoundsConfig persists the round ledger configuration.
func (s *Store) SetRoundsConfig(cfg rounds.Config) error {
	return s.save(ParamsKeyRounds, cfg)
}

// RoundsConfig loads the round ledger configuration if present.
func (s *Store) RoundsConfig() (rounds.Config, bool, error) {
	var cfg rounds.Config
	ok, err := s.load(ParamsKeyRounds, &cfg)
	if err != nil || !ok {
		return rounds.Config{}, false, err
	}
	return cfg, true, nil
}
