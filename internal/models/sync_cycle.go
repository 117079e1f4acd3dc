package models

import "time"

// SyncCycle records one end-to-end attempt to drain the queue snapshot.
type SyncCycle struct {
	ID               int64      `json:"id"`
	CycleID          string     `json:"cycle_id"`
	Attempt          int        `json:"attempt"`
	Snapshot         int        `json:"snapshot"`
	Written          int        `json:"written"`
	AlreadySatisfied int        `json:"already_satisfied"`
	FailedSubBatches int        `json:"failed_sub_batches"`
	Remaining        int        `json:"remaining"`
	Result           string     `json:"result"`
	LastError        *string    `json:"last_error"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
}

// Committed returns how many operations left the queue in this cycle.
func (c SyncCycle) Committed() int {
	return c.Written + c.AlreadySatisfied
}
