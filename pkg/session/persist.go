package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/guildboard/guildboard/pkg/store"
)

// Snapshot files under StateDir. These are caches that make restarts feel
// instant; the remote store stays the source of truth and Initialize
// re-derives state from it.
const (
	userSnapshotFile   = "user.json"
	tenantSnapshotFile = "tenant.json"
)

func (m *Manager) persistSnapshots(profile *store.Profile, tenant *store.Tenant) {
	if m.stateDir == "" {
		return
	}
	m.writeSnapshot(userSnapshotFile, profile)
	m.writeSnapshot(tenantSnapshotFile, tenant)
}

func (m *Manager) writeSnapshot(name string, value interface{}) {
	path := filepath.Join(m.stateDir, name)
	if value == nil || isNilPointer(value) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.WithError(err).WithField("file", name).Warn("failed to remove stale snapshot")
		}
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		m.logger.WithError(err).WithField("file", name).Warn("failed to serialize snapshot")
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		m.logger.WithError(err).WithField("file", name).Warn("failed to persist snapshot")
	}
}

func (m *Manager) removeSnapshots() {
	if m.stateDir == "" {
		return
	}
	for _, name := range []string{userSnapshotFile, tenantSnapshotFile} {
		path := filepath.Join(m.stateDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.WithError(err).WithField("file", name).Warn("failed to remove snapshot")
		}
	}
}

// loadUserSnapshot reads the persisted profile. A corrupt or unreadable
// snapshot is treated as absent.
func (m *Manager) loadUserSnapshot() *store.Profile {
	var profile store.Profile
	if !m.readSnapshot(userSnapshotFile, &profile) || profile.ID == "" {
		return nil
	}
	return &profile
}

// loadTenantSnapshot reads the persisted owned tenant
func (m *Manager) loadTenantSnapshot() *store.Tenant {
	var tenant store.Tenant
	if !m.readSnapshot(tenantSnapshotFile, &tenant) || tenant.ID == "" {
		return nil
	}
	return &tenant
}

func (m *Manager) readSnapshot(name string, out interface{}) bool {
	if m.stateDir == "" {
		return false
	}
	path := filepath.Join(m.stateDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.WithError(err).WithField("file", name).Warn("failed to read snapshot")
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		m.logger.WithError(err).WithField("file", name).Warn("snapshot is corrupt, ignoring")
		return false
	}
	return true
}

func isNilPointer(value interface{}) bool {
	switch v := value.(type) {
	case *store.Profile:
		return v == nil
	case *store.Tenant:
		return v == nil
	default:
		return false
	}
}
