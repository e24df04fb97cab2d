package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/alamak-sim/copsimcar/internal/model"
)

// ListRuns returns the journaled runs, newest first. A positive limit caps
// the result.
func ListRuns(db *gorm.DB, limit int) ([]model.Run, error) {
	var runs []model.Run
	q := db.Model(&model.Run{}).Order("start_time desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	return runs, nil
}

// FindRun looks a run up by UUID or by a unique UUID prefix.
func FindRun(db *gorm.DB, id string) (model.Run, error) {
	var runs []model.Run
	err := db.Model(&model.Run{}).Where("uuid LIKE ?", id+"%").Limit(2).Find(&runs).Error
	if err != nil {
		return model.Run{}, fmt.Errorf("error finding run %s: %w", id, err)
	}
	switch {
	case len(runs) == 0:
		return model.Run{}, fmt.Errorf("run %s: %w", id, gorm.ErrRecordNotFound)
	case len(runs) > 1:
		return model.Run{}, fmt.Errorf("run %s is ambiguous", id)
	}
	return runs[0], nil
}

// RunEvents returns the events of a run in time order.
func RunEvents(db *gorm.DB, runID uint) ([]model.Event, error) {
	var events []model.Event
	err := db.Model(&model.Event{}).Where("run_id = ?", runID).Order("time asc, id asc").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("error getting events: %w", err)
	}
	return events, nil
}

// RunStatuses returns the loop status samples of a run in time order.
func RunStatuses(db *gorm.DB, runID uint) ([]model.LoopStatus, error) {
	var statuses []model.LoopStatus
	err := db.Model(&model.LoopStatus{}).Where("run_id = ?", runID).Order("time asc, id asc").Find(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("error getting statuses: %w", err)
	}
	return statuses, nil
}
