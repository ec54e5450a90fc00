// Package domain contains persistence models for monitored cloud
// accounts and the process-wide policy settings.
package domain

// Account is one monitored cloud identity. The reconciliation engine
// only ever mutates the four observation fields (TrafficUsed,
// InstanceStatus, UpdatedAt, LastKeepAliveAt); everything else is
// owned by the configuration sync.
type Account struct {
	ID              int64   `gorm:"primaryKey;autoIncrement"`
	AccessKeyID     string  `gorm:"column:access_key_id;type:text"`
	AccessKeySecret string  `gorm:"type:text"`
	RegionID        string  `gorm:"type:text"`
	InstanceID      string  `gorm:"type:text"`
	MaxTraffic      float64 // quota ceiling, GB
	ScheduleEnabled bool
	StartTime       string `gorm:"type:text"` // "HH:MM", empty when unset
	StopTime        string `gorm:"type:text"`
	TrafficUsed     float64 `gorm:"default:0"`
	InstanceStatus  string  `gorm:"type:text;default:Unknown"`
	// UpdatedAt is epoch seconds of the last usable observation. It
	// must only advance when a refresh yields usable data, so gorm's
	// automatic touch-on-update is disabled.
	UpdatedAt       int64 `gorm:"column:updated_at;autoUpdateTime:false;default:0"`
	LastKeepAliveAt int64 `gorm:"default:0"`
}

func (Account) TableName() string { return "accounts" }

// MaskedID returns the access key id truncated for display and logs.
func (a Account) MaskedID() string {
	return MaskKey(a.AccessKeyID)
}

func MaskKey(key string) string {
	if len(key) <= 7 {
		return key + "***"
	}
	return key[:7] + "***"
}

// AccountSpec is the desired configuration for one account, as supplied
// by the settings surface. Observation fields are intentionally absent:
// SyncAccounts preserves them across edits.
type AccountSpec struct {
	AccessKeyID     string
	AccessKeySecret string
	RegionID        string
	InstanceID      string
	MaxTraffic      float64
	ScheduleEnabled bool
	StartTime       string
	StopTime        string
}

// Setting is one row of the key/value settings table.
type Setting struct {
	Key   string `gorm:"primaryKey;type:text"`
	Value string `gorm:"type:text"`
}

func (Setting) TableName() string { return "settings" }

// JournalKind classifies journal entries.
type JournalKind string

const (
	JournalInfo      JournalKind = "info"
	JournalWarning   JournalKind = "warning"
	JournalError     JournalKind = "error"
	JournalHeartbeat JournalKind = "heartbeat"
)

// JournalEntry is an append-only operational log row. It is never
// consulted by the decision logic.
type JournalEntry struct {
	ID        int64       `gorm:"primaryKey;autoIncrement"`
	Kind      JournalKind `gorm:"column:type;type:text"`
	Message   string      `gorm:"type:text"`
	CreatedAt int64       `gorm:"autoCreateTime:false"`
}

func (JournalEntry) TableName() string { return "journal_entries" }

// Observation is a committed per-account observation write.
type Observation struct {
	TrafficUsed float64
	Status      string
	ObservedAt  int64
}
