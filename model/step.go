package model

import (
	"time"
)

// StepType is one stage of a document pipeline
type StepType string

const (
	StepUpload         StepType = "UPLOAD"
	StepExtraction     StepType = "EXTRACTION"
	StepReview         StepType = "REVIEW"
	StepAcknowledgment StepType = "ACKNOWLEDGMENT"
	StepSignature      StepType = "SIGNATURE"
	StepCompletion     StepType = "COMPLETION"
)

func (t StepType) Valid() bool {
	switch t {
	case StepUpload, StepExtraction, StepReview, StepAcknowledgment, StepSignature, StepCompletion:
		return true
	}
	return false
}

// StepStatus constants
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepProcessing StepStatus = "PROCESSING"
	StepCompleted  StepStatus = "COMPLETED"
	StepRejected   StepStatus = "REJECTED"
)

// Active reports whether a step of this status blocks a new step of the same type
func (s StepStatus) Active() bool {
	return s == StepPending || s == StepProcessing
}

// WorkflowStep records one step of a document's pipeline
type WorkflowStep struct {
	ID           string     `json:"id" gorm:"column:id;primaryKey"`
	DocumentID   string     `json:"document_id" gorm:"column:document_id;index"`
	StepType     StepType   `json:"step_type" gorm:"column:step_type"`
	Status       StepStatus `json:"status" gorm:"column:status"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"column:error_message"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CompletedBy  string     `json:"completed_by,omitempty" gorm:"column:completed_by"`
	CreatedAt    time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (WorkflowStep) TableName() string { return "workflow_steps" }
