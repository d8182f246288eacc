package domain

import (
	"maps"
	"time"
)

// Well-known provider ids
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// ProviderInfo identifies a provider variant
type ProviderInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ProviderConfig is the user-editable configuration of a provider.
// Fields holds provider-specific settings (API URL, PAT, filters).
type ProviderConfig struct {
	Enabled  bool           `json:"enabled"`
	FolderID string         `json:"folderId,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// IsSyncable reports whether the provider is eligible for sync.
func (c *ProviderConfig) IsSyncable() bool {
	return c != nil && c.Enabled && c.FolderID != ""
}

// String returns a provider-specific string field, or "" if absent.
func (c *ProviderConfig) String(key string) string {
	if c == nil || c.Fields == nil {
		return ""
	}
	s, _ := c.Fields[key].(string)
	return s
}

// Clone returns a deep-enough copy (Fields map is copied).
func (c *ProviderConfig) Clone() *ProviderConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Fields != nil {
		clone.Fields = maps.Clone(c.Fields)
	}
	return &clone
}

// ConfigPatch is a partial configuration update. Nil members are left untouched.
type ConfigPatch struct {
	Enabled  *bool          `json:"enabled,omitempty"`
	FolderID *string        `json:"folderId,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Apply merges the patch into c, preserving every field the patch does not name.
func (c *ProviderConfig) Apply(patch ConfigPatch) {
	if patch.Enabled != nil {
		c.Enabled = *patch.Enabled
	}
	if patch.FolderID != nil {
		c.FolderID = *patch.FolderID
	}
	if len(patch.Fields) > 0 && c.Fields == nil {
		c.Fields = make(map[string]any, len(patch.Fields))
	}
	for k, v := range patch.Fields {
		if v == nil {
			delete(c.Fields, k)
			continue
		}
		c.Fields[k] = v
	}
}

// ProviderRecord is everything persisted for one provider except its AuthState,
// which is stored (and encrypted) separately under the same key namespace.
type ProviderRecord struct {
	ID        string          `json:"id"`
	Config    ProviderConfig  `json:"config"`
	LastSync  *time.Time      `json:"lastSync,omitempty"`
	LastError string          `json:"lastError,omitempty"`
	Items     []SnapshotEntry `json:"items"`
}

// NewProviderRecord creates an empty record with the given default config.
func NewProviderRecord(id string, cfg ProviderConfig) *ProviderRecord {
	return &ProviderRecord{
		ID:     id,
		Config: *cfg.Clone(),
		Items:  []SnapshotEntry{},
	}
}

// ProviderStatus is the live status of a provider as exposed by the registry
type ProviderStatus struct {
	ProviderID    string     `json:"providerId"`
	Name          string     `json:"name"`
	Enabled       bool       `json:"enabled"`
	FolderID      string     `json:"folderId,omitempty"`
	Authenticated bool       `json:"authenticated"`
	LastSync      *time.Time `json:"lastSync,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	ItemCount     int        `json:"itemCount"`
}
