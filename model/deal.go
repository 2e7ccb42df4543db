package model

import (
	"time"
)

// Stage is the onboarding stage of a deal
type Stage string

const (
	StageNewLead         Stage = "NEW_LEAD"
	StageKYCInProgress   Stage = "KYC_IN_PROGRESS"
	StageDueDiligence    Stage = "DUE_DILIGENCE"
	StageContractSigning Stage = "CONTRACT_SIGNING"
	StageOnboarded       Stage = "ONBOARDED"
	StageRejected        Stage = "REJECTED"
)

// Stages lists every stage in forward order, REJECTED last.
var Stages = []Stage{
	StageNewLead,
	StageKYCInProgress,
	StageDueDiligence,
	StageContractSigning,
	StageOnboarded,
	StageRejected,
}

func (s Stage) Valid() bool {
	for _, v := range Stages {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s Stage) Terminal() bool {
	return s == StageOnboarded || s == StageRejected
}

// KYCStatus is the compliance state of a deal
type KYCStatus string

const (
	KYCPending   KYCStatus = "PENDING"
	KYCSubmitted KYCStatus = "SUBMITTED"
	KYCVerified  KYCStatus = "VERIFIED"
	KYCRejected  KYCStatus = "REJECTED"
)

func (s KYCStatus) Valid() bool {
	switch s {
	case KYCPending, KYCSubmitted, KYCVerified, KYCRejected:
		return true
	}
	return false
}

// Priority ranks a deal in the pipeline
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Contact is the person a deal is negotiated with
type Contact struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	Tenant    string    `json:"tenant" gorm:"column:tenant;index"`
	Name      string    `json:"name" gorm:"column:name"`
	Email     string    `json:"email" gorm:"column:email"`
	Phone     string    `json:"phone,omitempty" gorm:"column:phone"`
	Company   string    `json:"company,omitempty" gorm:"column:company"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Contact) TableName() string { return "contacts" }

// Deal represents an investment opportunity moving through onboarding
type Deal struct {
	ID               string    `json:"id" gorm:"column:id;primaryKey"`
	Tenant           string    `json:"tenant" gorm:"column:tenant;index"`
	Title            string    `json:"title" gorm:"column:title"`
	ContactID        string    `json:"contact_id" gorm:"column:contact_id;index"`
	Company          string    `json:"company,omitempty" gorm:"column:company"`
	Owner            string    `json:"owner" gorm:"column:owner"`
	Stage            Stage     `json:"stage" gorm:"column:stage"`
	KYCStatus        KYCStatus `json:"kyc_status" gorm:"column:kyc_status"`
	DealValue        *float64  `json:"deal_value,omitempty" gorm:"column:deal_value"`
	PipelinePriority Priority  `json:"pipeline_priority" gorm:"column:pipeline_priority"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Deal) TableName() string { return "deals" }

// TaskStatus constants
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskCompleted TaskStatus = "COMPLETED"
)

// Task is a follow-up action attached to a deal
type Task struct {
	ID          string     `json:"id" gorm:"column:id;primaryKey"`
	Tenant      string     `json:"tenant" gorm:"column:tenant;index"`
	DealID      string     `json:"deal_id" gorm:"column:deal_id;index"`
	Title       string     `json:"title" gorm:"column:title"`
	Description string     `json:"description" gorm:"column:description"`
	DueDate     time.Time  `json:"due_date" gorm:"column:due_date"`
	Assignee    string     `json:"assignee" gorm:"column:assignee"`
	Status      TaskStatus `json:"status" gorm:"column:status"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (Task) TableName() string { return "tasks" }
