package kyc

import (
	"encoding/json"
	"time"
)

// KYCStatus is the user-level onboarding outcome
type KYCStatus string

const (
	StatusPending     KYCStatus = "pending"
	StatusInReview    KYCStatus = "in_review"
	StatusApproved    KYCStatus = "approved"
	StatusRejected    KYCStatus = "rejected"
	StatusNeedsUpdate KYCStatus = "needs_update"
)

// WorkflowStep names a stage of the onboarding workflow
type WorkflowStep string

const (
	StepDocumentCollection        WorkflowStep = "document_collection"
	StepIdentityVerification      WorkflowStep = "identity_verification"
	StepSanctionsCheck            WorkflowStep = "sanctions_check"
	StepEUETSVerification         WorkflowStep = "eu_ets_verification"
	StepSuitabilityAssessment     WorkflowStep = "suitability_assessment"
	StepAppropriatenessAssessment WorkflowStep = "appropriateness_assessment"
	StepFinalReview               WorkflowStep = "final_review"
	StepApproved                  WorkflowStep = "approved"
	StepRejected                  WorkflowStep = "rejected"
)

// WorkflowStatus is the overall workflow state
type WorkflowStatus string

const (
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowRejected   WorkflowStatus = "rejected"
	WorkflowOnHold     WorkflowStatus = "on_hold"
)

// DocumentType classifies an uploaded KYC document
type DocumentType string

const (
	DocCompanyRegistration DocumentType = "company_registration"
	DocFinancialStatement  DocumentType = "financial_statement"
	DocTaxCertificate      DocumentType = "tax_certificate"
	DocEUETSProof          DocumentType = "eu_ets_proof"
	DocPowerOfAttorney     DocumentType = "power_of_attorney"
	DocIDDocument          DocumentType = "id_document"
	DocAddressProof        DocumentType = "address_proof"
	DocBeneficialOwnership DocumentType = "beneficial_ownership"
)

// RequiredDocumentTypes must each have at least one upload before submission
var RequiredDocumentTypes = []DocumentType{
	DocCompanyRegistration,
	DocFinancialStatement,
	DocTaxCertificate,
	DocEUETSProof,
	DocPowerOfAttorney,
}

var validDocumentTypes = map[DocumentType]bool{
	DocCompanyRegistration: true,
	DocFinancialStatement:  true,
	DocTaxCertificate:      true,
	DocEUETSProof:          true,
	DocPowerOfAttorney:     true,
	DocIDDocument:          true,
	DocAddressProof:        true,
	DocBeneficialOwnership: true,
}

// VerificationStatus is the review state of one document
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// User carries the trading profile and KYC state for one account
type User struct {
	ID            string `json:"id" gorm:"primaryKey;size:36"`
	Username      string `json:"username" gorm:"uniqueIndex;size:80;not null"`
	Email         string `json:"email" gorm:"uniqueIndex;size:120;not null"`
	CompanyName   string `json:"company_name" gorm:"size:200"`
	Address       string `json:"address"`
	ContactPerson string `json:"contact_person" gorm:"size:100"`
	Phone         string `json:"phone" gorm:"size:20"`
	IsAdmin       bool   `json:"is_admin"`

	KYCStatus      KYCStatus  `json:"kyc_status" gorm:"default:pending;not null"`
	KYCSubmittedAt *time.Time `json:"kyc_submitted_at,omitempty"`

	RegistryAccount    string     `json:"eu_ets_registry_account" gorm:"size:50"`
	RegistryCountry    string     `json:"eu_ets_registry_country" gorm:"size:2"`
	RegistryVerified   bool       `json:"eu_ets_registry_verified"`
	RegistryVerifiedAt *time.Time `json:"eu_ets_registry_verified_at,omitempty"`

	Suitability     json.RawMessage `json:"suitability_assessment,omitempty" gorm:"type:jsonb"`
	Appropriateness json.RawMessage `json:"appropriateness_assessment,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Workflow tracks onboarding progress for one user
type Workflow struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	UserID      string         `json:"user_id" gorm:"uniqueIndex;size:36;not null"`
	CurrentStep WorkflowStep   `json:"current_step" gorm:"default:document_collection;not null"`
	Status      WorkflowStatus `json:"status" gorm:"default:in_progress;not null"`
	Data        json.RawMessage `json:"workflow_data" gorm:"type:jsonb"`
	Notes       string         `json:"notes,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (Workflow) TableName() string {
	return "kyc_workflows"
}

// Document is the metadata record for one uploaded file; the content lives
// in object storage under S3Key.
type Document struct {
	ID                 string             `json:"id" gorm:"primaryKey;size:36"`
	UserID             string             `json:"user_id" gorm:"index;size:36;not null"`
	DocumentType       DocumentType       `json:"document_type" gorm:"not null"`
	FileName           string             `json:"file_name" gorm:"size:255;not null"`
	FileSize           int64              `json:"file_size" gorm:"not null"`
	MimeType           string             `json:"mime_type" gorm:"size:100;not null"`
	S3Bucket           string             `json:"-" gorm:"size:100;not null"`
	S3Key              string             `json:"-" gorm:"size:500;not null"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"default:pending;not null"`
	VerificationNotes  string             `json:"verification_notes,omitempty"`
	VerifiedBy         string             `json:"verified_by,omitempty" gorm:"size:36"`
	UploadedAt         time.Time          `json:"uploaded_at"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
}

func (Document) TableName() string {
	return "kyc_documents"
}

// VerificationResult is the outcome of a registry account check
type VerificationResult struct {
	Verified           bool      `json:"verified"`
	AccountNumber      string    `json:"account_number"`
	Country            string    `json:"country"`
	Status             string    `json:"status"`
	VerifiedAt         time.Time `json:"verified_at"`
	VerificationMethod string    `json:"verification_method"`
	Error              string    `json:"error,omitempty"`
}
