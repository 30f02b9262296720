// Package settings provides the reactive key/value store for tunables
// read at operation time: the job history memory budget, selection mask
// shaping percentages and UI affordance toggles.
//
// Values are backed by a viper instance so they can come from the config
// file or environment; observers subscribe to per-key change
// notifications and recompute derived state on receipt.
package settings

import (
	"sync"

	"github.com/spf13/viper"

	"github.com/easelapp/easel-api/internal/events"
)

// Setting keys.
const (
	KeyHistorySize       = "history_size"         // MB of retained diffusion results
	KeySelectionGrow     = "selection_grow"       // percent of selection size
	KeySelectionFeather  = "selection_feather"    // percent of selection size
	KeySelectionPadding  = "selection_padding"    // percent of selection size
	KeyShowControlEnd    = "show_control_end"     // expose the control end-weight slider
	KeyNewSeedAfterApply = "new_seed_after_apply" // reroll the fixed seed after apply
)

// Store is a read-mostly settings container with per-key change
// notification. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	v       *viper.Viper
	changed events.Signal[string]
}

// New returns a Store with built-in defaults applied.
func New() *Store {
	v := viper.New()
	applyDefaults(v)
	return &Store{v: v}
}

// FromViper wraps an existing viper instance (typically the one that
// loaded the service config), layering defaults under whatever it has.
func FromViper(v *viper.Viper) *Store {
	applyDefaults(v)
	return &Store{v: v}
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault(KeyHistorySize, 1000)
	v.SetDefault(KeySelectionGrow, 5.0)
	v.SetDefault(KeySelectionFeather, 5.0)
	v.SetDefault(KeySelectionPadding, 10.0)
	v.SetDefault(KeyShowControlEnd, false)
	v.SetDefault(KeyNewSeedAfterApply, false)
}

// Changed notifies with the key whose value was updated.
func (s *Store) Changed() *events.Signal[string] {
	return &s.changed
}

// Set updates a key and notifies observers. The notification fires even
// if the value is unchanged; observers are expected to recompute
// idempotently.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.v.Set(key, value)
	s.mu.Unlock()
	s.changed.Emit(key)
}

// HistorySizeMB returns the memory budget for retained diffusion
// results.
func (s *Store) HistorySizeMB() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetInt(KeyHistorySize)
}

// SelectionGrow returns the selection grow percentage.
func (s *Store) SelectionGrow() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetFloat64(KeySelectionGrow)
}

// SelectionFeather returns the selection feather percentage.
func (s *Store) SelectionFeather() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetFloat64(KeySelectionFeather)
}

// SelectionPadding returns the selection padding percentage.
func (s *Store) SelectionPadding() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetFloat64(KeySelectionPadding)
}

// ShowControlEnd reports whether the end-weight affordance is enabled.
func (s *Store) ShowControlEnd() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(KeyShowControlEnd)
}

// NewSeedAfterApply reports whether applying a result rolls the seed.
func (s *Store) NewSeedAfterApply() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(KeyNewSeedAfterApply)
}
