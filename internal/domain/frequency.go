package domain

import "time"

// Frequency is how often automatic backups should run.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency validates s against the known frequencies.
// Returns ErrInvalidFrequency on any other value.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return Frequency(s), nil
	}
	return "", ErrInvalidFrequency
}

// Days returns the whole-day threshold after which a backup is due again.
func (f Frequency) Days() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyMonthly:
		return 30
	default:
		return 1
	}
}

// BackupPolicy is the persisted auto-backup policy. LastBackup is nil until
// the first successful automatic run.
type BackupPolicy struct {
	AutoBackup bool       `json:"autoBackup"`
	Frequency  Frequency  `json:"frequency"`
	LastBackup *time.Time `json:"lastBackupTimestamp"`
}

// DefaultBackupPolicy returns the policy applied on first run: automatic
// backups off, weekly once enabled.
func DefaultBackupPolicy() BackupPolicy {
	return BackupPolicy{AutoBackup: false, Frequency: FrequencyWeekly}
}
