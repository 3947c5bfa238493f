// Package models holds the Bun row types persisted by the storage package.
// They mirror the domain types but stay free of domain imports so the wire
// shape of a row can evolve independently of in-process semantics.
package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RunModel is one row per completed or failed workflow run, kept for
// post-run inspection and audit after the in-memory WorkflowContext that
// produced it is gone.
type RunModel struct {
	bun.BaseModel `bun:"table:nodeflow_runs,alias:r"`

	RunID      string    `bun:"run_id,pk" json:"run_id"`
	WorkflowID string    `bun:"workflow_id,notnull" json:"workflow_id"`
	Status     string    `bun:"status,notnull" json:"status"`
	StartTime  time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime    time.Time `bun:"end_time,notnull" json:"end_time"`
	NodeErrors string    `bun:"node_errors" json:"node_errors,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (RunModel) TableName() string { return "nodeflow_runs" }
