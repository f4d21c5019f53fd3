package manager

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"reflect"

	"stacker/internal/config"
	"stacker/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type botsFile struct {
	Bots []config.BotConfig `yaml:"bots"`
}

// watchBotsFile loads the standalone bot definitions and keeps the fleet in
// sync with edits: new entries start, changed entries restart with the new
// config, removed entries stop. Inline bots from the main config are never
// touched.
func (m *Manager) watchBotsFile(ctx context.Context, path string) error {
	if err := m.applyBotsFile(path); err != nil {
		return err
	}

	// viper only drives the file watch here; parsing stays strict below.
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read bots file failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		logger.Infof("bots file changed (%s), reloading", evt.Op)
		if err := m.applyBotsFile(path); err != nil {
			// Keep running with the previous fleet; a broken edit should
			// not take live bots down.
			logger.Errorf("bots file reload failed: %v", err)
		}
	})
	v.WatchConfig()
	logger.Infof("watching bots file %s", path)
	return nil
}

func (m *Manager) applyBotsFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bots file failed: %w", err)
	}

	var bf botsFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true) // reject typoed keys instead of ignoring them
	if err := dec.Decode(&bf); err != nil {
		return fmt.Errorf("parse bots file failed: %w", err)
	}

	desired := make(map[string]config.BotConfig, len(bf.Bots))
	for _, bc := range bf.Bots {
		if _, dup := desired[bc.ID]; dup {
			return fmt.Errorf("bots file: duplicate bot id %q", bc.ID)
		}
		bc.ApplyDefaults(m.cfg.App.DataDir)
		if err := bc.Validate(); err != nil {
			return fmt.Errorf("bots file: bot %s: %w", bc.ID, err)
		}
		desired[bc.ID] = bc
	}

	// Remove file-managed bots that disappeared from the file.
	m.mu.Lock()
	var stale []string
	current := make(map[string]config.BotConfig)
	for id, r := range m.bots {
		if !r.fromFile {
			continue
		}
		if _, keep := desired[id]; !keep {
			stale = append(stale, id)
		} else {
			current[id] = r.cfg
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		if err := m.Remove(id); err != nil {
			logger.Warnf("remove bot %s failed: %v", id, err)
		}
	}

	for id, bc := range desired {
		if prev, ok := current[id]; ok && reflect.DeepEqual(prev, bc) {
			continue // unchanged, leave it running
		}
		if err := m.upsert(bc, true); err != nil {
			return fmt.Errorf("bots file: bot %s: %w", id, err)
		}
	}
	return nil
}
