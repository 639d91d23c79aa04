// internal/models/history.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// BehaviorRun is one process run of the controller.
type BehaviorRun struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	RunID          string         `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	Device         string         `gorm:"size:50;not null;index" json:"device"`
	StartedAt      time.Time      `gorm:"not null;index" json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at"`
	ShutdownReason string         `gorm:"size:200" json:"shutdown_reason"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// StateTransition is the persisted form of a TransitionRecord.
type StateTransition struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RunID            string    `gorm:"size:36;not null;index" json:"run_id"`
	Device           string    `gorm:"size:50;not null;index" json:"device"`
	FromState        string    `gorm:"size:20;not null" json:"from_state"`
	ToState          string    `gorm:"size:20;not null;index" json:"to_state"`
	Trigger          string    `gorm:"size:20;not null" json:"trigger"`
	CollisionCount   int       `gorm:"default:0" json:"collision_count"`
	TimeInPreviousMs int64     `json:"time_in_previous_ms"`
	OccurredAt       time.Time `gorm:"not null;index" json:"occurred_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewStateTransition converts a record to its table row.
func NewStateTransition(rec TransitionRecord) *StateTransition {
	return &StateTransition{
		RunID:            rec.RunID,
		Device:           rec.Device,
		FromState:        string(rec.From),
		ToState:          string(rec.To),
		Trigger:          string(rec.Trigger),
		CollisionCount:   rec.CollisionCount,
		TimeInPreviousMs: rec.TimeInPrevious.Milliseconds(),
		OccurredAt:       rec.At,
	}
}
