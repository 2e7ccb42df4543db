package model

import (
	"time"
)

// FileType classifies an uploaded document
type FileType string

const (
	FileID           FileType = "ID"
	FilePassport     FileType = "PASSPORT"
	FileCompanyCert  FileType = "COMPANY_CERT"
	FileAML          FileType = "AML"
	FileKYC          FileType = "KYC"
	FilePitchDeck    FileType = "PITCH_DECK"
	FileBusinessPlan FileType = "BUSINESS_PLAN"
	FilePPM          FileType = "PPM"
	FileContract     FileType = "CONTRACT"
	FileOther        FileType = "OTHER"
)

func (t FileType) Valid() bool {
	switch t {
	case FileID, FilePassport, FileCompanyCert, FileAML, FileKYC,
		FilePitchDeck, FileBusinessPlan, FilePPM, FileContract, FileOther:
		return true
	}
	return false
}

// Compliance reports whether the type goes through AI extraction and
// requires an acknowledgment before signature.
func (t FileType) Compliance() bool {
	return t == FileAML || t == FileKYC
}

// WorkflowStatus is the overall processing state of a document
type WorkflowStatus string

const (
	WorkflowPending                WorkflowStatus = "PENDING"
	WorkflowProcessing             WorkflowStatus = "PROCESSING"
	WorkflowReadyForReview         WorkflowStatus = "READY_FOR_REVIEW"
	WorkflowAwaitingAcknowledgment WorkflowStatus = "AWAITING_ACKNOWLEDGMENT"
	WorkflowAcknowledged           WorkflowStatus = "ACKNOWLEDGED"
	WorkflowReadyForSignature      WorkflowStatus = "READY_FOR_SIGNATURE"
	WorkflowSigned                 WorkflowStatus = "SIGNED"
	WorkflowRejected               WorkflowStatus = "REJECTED"
)

// ValidationStatus constants
type ValidationStatus string

const (
	ValidationPending        ValidationStatus = "PENDING"
	ValidationRequiresReview ValidationStatus = "REQUIRES_REVIEW"
	ValidationValid          ValidationStatus = "VALID"
	ValidationInvalid        ValidationStatus = "INVALID"
)

// ESignatureStatus constants
type ESignatureStatus string

const (
	ESignatureUnsigned ESignatureStatus = "UNSIGNED"
	ESignatureSigned   ESignatureStatus = "SIGNED"
)

// Document is a file attached to a deal together with its workflow state
type Document struct {
	ID                     string           `json:"id" gorm:"column:id;primaryKey"`
	Tenant                 string           `json:"tenant" gorm:"column:tenant;index"`
	DealID                 string           `json:"deal_id" gorm:"column:deal_id;index"`
	Filename               string           `json:"filename" gorm:"column:filename"`
	ContentType            string           `json:"content_type" gorm:"column:content_type"`
	Size                   int64            `json:"size" gorm:"column:size"`
	PageCount              int              `json:"page_count,omitempty" gorm:"column:page_count"`
	StoragePath            string           `json:"-" gorm:"column:storage_path"`
	FileType               FileType         `json:"file_type" gorm:"column:file_type"`
	WorkflowStatus         WorkflowStatus   `json:"workflow_status" gorm:"column:workflow_status"`
	ValidationStatus       ValidationStatus `json:"validation_status" gorm:"column:validation_status"`
	ESignatureStatus       ESignatureStatus `json:"e_signature_status" gorm:"column:e_signature_status"`
	AcknowledgmentRequired bool             `json:"acknowledgment_required" gorm:"column:acknowledgment_required"`
	AcknowledgedAt         *time.Time       `json:"acknowledged_at,omitempty" gorm:"column:acknowledged_at"`
	AcknowledgedBy         string           `json:"acknowledged_by,omitempty" gorm:"column:acknowledged_by"`
	AcknowledgmentText     string           `json:"acknowledgment_text,omitempty" gorm:"column:acknowledgment_text"`
	ExtractedData          JSONB            `json:"extracted_data,omitempty" gorm:"column:extracted_data;type:jsonb"`
	SignedAt               *time.Time       `json:"signed_at,omitempty" gorm:"column:signed_at"`
	CreatedAt              time.Time        `json:"created_at" gorm:"column:created_at"`
	UpdatedAt              time.Time        `json:"updated_at" gorm:"column:updated_at"`
}

func (Document) TableName() string { return "documents" }

// Acknowledged reports whether an acknowledgment has been recorded
func (d *Document) Acknowledged() bool {
	return d.AcknowledgedAt != nil
}

// SignatureStatus constants
type SignatureStatus string

const (
	SignatureSigned   SignatureStatus = "SIGNED"
	SignatureVerified SignatureStatus = "VERIFIED"
)

// Signature is an immutable e-signature record on a document
type Signature struct {
	ID                string          `json:"id" gorm:"column:id;primaryKey"`
	DocumentID        string          `json:"document_id" gorm:"column:document_id;index"`
	Signer            string          `json:"signer" gorm:"column:signer"`
	SignatureData     []byte          `json:"-" gorm:"column:signature_data"`
	Status            SignatureStatus `json:"status" gorm:"column:status"`
	VerificationToken string          `json:"verification_token" gorm:"column:verification_token;uniqueIndex"`
	IPAddress         string          `json:"ip_address,omitempty" gorm:"column:ip_address"`
	SignedAt          time.Time       `json:"signed_at" gorm:"column:signed_at"`
	VerifiedAt        *time.Time      `json:"verified_at,omitempty" gorm:"column:verified_at"`
	CreatedAt         time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (Signature) TableName() string { return "signatures" }
