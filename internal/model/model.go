// Package model defines the run journal records and their database schema.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels lists every table of the journal schema.
var DatabaseModels = []any{
	&Run{},
	&Event{},
	&LoopStatus{},
}

// Event kinds recorded in the journal.
const (
	EventReset           = "reset"
	EventCaptureFailure  = "capture_failure"
	EventActuatorFailure = "actuator_failure"
	EventQuit            = "quit"
)

// Run is one execution of a car program against the simulator.
type Run struct {
	ID               uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	UUID             string         `json:"uuid" gorm:"size:36;uniqueIndex"`
	Program          string         `json:"program" gorm:"size:64"`
	Host             string         `json:"host" gorm:"size:255"`
	Port             int            `json:"port"`
	StartTime        time.Time      `json:"startTime" gorm:"index:idx_run_start"`
	EndTime          *time.Time     `json:"endTime,omitempty"`
	Cycles           int64          `json:"cycles"`
	Resets           int64          `json:"resets"`
	ActuatorFailures int64          `json:"actuatorFailures"`
	ExitReason       string         `json:"exitReason" gorm:"size:255"`
	Config           datatypes.JSON `json:"config"`
}

func (*Run) TableName() string {
	return "runs"
}

// Duration returns how long the run lasted, or has lasted so far.
func (r *Run) Duration(now time.Time) time.Duration {
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return now.Sub(r.StartTime)
}

// Event is a notable control loop occurrence.
type Event struct {
	ID     uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time   time.Time `json:"time"`
	RunID  uint      `json:"runId" gorm:"index:idx_event_run_id"`
	Run    Run       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	Cycle  int64     `json:"cycle"`
	Kind   string    `json:"kind" gorm:"size:32;index:idx_event_kind"`
	Detail string    `json:"detail"`
}

func (*Event) TableName() string {
	return "events"
}

// LoopStatus is a periodic sample of the control loop counters.
type LoopStatus struct {
	ID               uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time             time.Time `json:"time" gorm:"index:idx_status_time"`
	RunID            uint      `json:"runId" gorm:"index:idx_status_run_id"`
	Run              Run       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	Cycles           int64     `json:"cycles"`
	CyclesPerSecond  float64   `json:"cyclesPerSecond"`
	Resets           int64     `json:"resets"`
	ActuatorFailures int64     `json:"actuatorFailures"`
	LastCaptureMs    float32   `json:"lastCaptureMs"`
}

func (*LoopStatus) TableName() string {
	return "loop_statuses"
}
