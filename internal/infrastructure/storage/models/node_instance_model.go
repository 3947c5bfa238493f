package models

import (
	"time"

	"github.com/uptrace/bun"
)

// NodeInstanceModel is one row per node invocation recorded within a run.
type NodeInstanceModel struct {
	bun.BaseModel `bun:"table:nodeflow_node_instances,alias:ni"`

	InstanceID   string    `bun:"instance_id,pk" json:"instance_id"`
	RunID        string    `bun:"run_id,notnull" json:"run_id"`
	NodeID       string    `bun:"node_id,notnull" json:"node_id"`
	Status       string    `bun:"status,notnull" json:"status"`
	StartTime    time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime      time.Time `bun:"end_time,notnull" json:"end_time"`
	ErrorMessage string    `bun:"error_message" json:"error_message,omitempty"`
	OutputData   JSONBMap  `bun:"output_data,type:jsonb,default:'{}'" json:"output_data,omitempty"`
}

func (NodeInstanceModel) TableName() string { return "nodeflow_node_instances" }
