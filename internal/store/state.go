package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stacker/internal/engine"
	"stacker/internal/logger"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// stateSchemaJSON guards snapshot loading: a file that parses as JSON but has
// the wrong shape (wrong types, negative quantities) is treated as corrupt
// instead of being half-applied.
const stateSchemaJSON = `{
  "type": "object",
  "properties": {
    "lots": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "entry": {"type": "number", "minimum": 0},
          "filled_qty": {"type": "number", "minimum": 0},
          "qty_rem": {"type": "number", "minimum": 0},
          "tp_taken_idx": {"type": "integer", "minimum": -1},
          "pooled": {"type": "boolean"},
          "cost_basis": {"type": "number", "minimum": 0}
        }
      }
    },
    "core": {
      "type": "object",
      "properties": {
        "qty": {"type": "number", "minimum": 0},
        "avg_entry": {"type": ["number", "null"], "exclusiveMinimum": 0},
        "tp_done": {"type": "object", "additionalProperties": {"type": "boolean"}}
      }
    },
    "budget": {
      "type": "object",
      "properties": {
        "daily_remaining": {"type": "number"},
        "weekly_remaining": {"type": "number"},
        "recycled_cash": {"type": "number", "minimum": 0},
        "recycled_today_budget": {"type": "number", "minimum": 0},
        "current_day": {"type": "string"},
        "current_week": {"type": "string"}
      }
    },
    "cash_free": {"type": "number"},
    "equity_hint": {"type": "number"}
  }
}`

var stateSchema = jsonschema.MustCompileString("bot_state.json", stateSchemaJSON)

// StateStore persists one bot's ledger state as a JSON snapshot. Saves are
// atomic (write temp, rename) so a crash mid-write never leaves a truncated
// snapshot behind.
type StateStore struct {
	path string
	mu   sync.Mutex
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) Path() string { return s.path }

// Load reads the snapshot. A missing file yields a fresh state; an unreadable
// or schema-invalid file is moved aside and a fresh state is returned, so one
// bad write never bricks the bot.
func (s *StateStore) Load() (*engine.BotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return engine.NewBotState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state snapshot: %w", err)
	}

	if err := validateSnapshot(raw); err != nil {
		logger.Errorf("state snapshot %s is corrupt (%v), starting fresh", s.path, err)
		s.quarantine()
		return engine.NewBotState(), nil
	}

	st := engine.NewBotState()
	if err := json.Unmarshal(raw, st); err != nil {
		logger.Errorf("state snapshot %s failed to decode (%v), starting fresh", s.path, err)
		s.quarantine()
		return engine.NewBotState(), nil
	}
	return st, nil
}

// Save writes the snapshot atomically.
func (s *StateStore) Save(st *engine.BotState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit state snapshot: %w", err)
	}
	return nil
}

func (s *StateStore) quarantine() {
	if err := os.Rename(s.path, s.path+".corrupt"); err != nil {
		logger.Warnf("could not quarantine corrupt snapshot %s: %v", s.path, err)
	}
}

func validateSnapshot(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return stateSchema.Validate(doc)
}
