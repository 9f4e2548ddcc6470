package data

import (
	"context"
	"sync"

	"github.com/stake-plus/devhub-cache/src/store"
)

var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings loads all active settings from the database into cache.
func LoadSettings(ctx context.Context, st *store.Store) error {
	settings, err := st.ActiveSettings(ctx)
	if err != nil {
		return err
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()
	settingsCache = settings
	return nil
}

// GetSetting retrieves a setting value from cache (call LoadSettings first).
func GetSetting(name string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsCache[name]
}

// Settings returns a copy of the cached settings.
func Settings() map[string]string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	out := make(map[string]string, len(settingsCache))
	for k, v := range settingsCache {
		out[k] = v
	}
	return out
}
