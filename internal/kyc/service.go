package kyc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/pkg/storage"
	"nihao-carbon/carbon-trading/trading-backend/pkg/workflows"
)

const (
	maxDocumentSize   = 16 * 1024 * 1024
	statusCacheTTL    = 10 * time.Second
	documentsCacheTTL = 15 * time.Second
)

var allowedExtensions = map[string]bool{
	"pdf": true, "png": true, "jpg": true, "jpeg": true, "doc": true, "docx": true,
}

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrWorkflowNotFound    = errors.New("onboarding not started")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidDocumentType = errors.New("invalid document type")
	ErrFileTooLarge        = errors.New("file exceeds maximum size")
	ErrFileTypeNotAllowed  = errors.New("file type not allowed")
	ErrMissingFields       = errors.New("all fields are required")
)

// SubmissionBlockedError reports why a dossier cannot be submitted yet
type SubmissionBlockedError struct {
	Gate Gate
}

func (e *SubmissionBlockedError) Error() string {
	if len(e.Gate.MissingDocuments) > 0 {
		return "missing required documents"
	}
	return "registry account not verified"
}

type RegisterRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	CompanyName   string `json:"company_name"`
	Address       string `json:"address"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
}

type StatusResponse struct {
	User     *User     `json:"user"`
	Workflow *Workflow `json:"workflow"`
}

type UploadInput struct {
	DocumentType DocumentType
	FileName     string
	ContentType  string
	Size         int64
	Content      io.Reader
}

type SuitabilitySubmission struct {
	Input           SuitabilityInput       `json:"input"`
	Result          SuitabilityResult      `json:"assessment_result"`
	Products        ProductRecommendations `json:"product_recommendations"`
	SubmittedAt     time.Time              `json:"submitted_at"`
}

type AppropriatenessSubmission struct {
	KnowledgeTest KnowledgeTest         `json:"knowledge_test"`
	Experience    ExperienceDeclaration `json:"experience_declaration"`
	Result        AppropriatenessResult `json:"assessment_result"`
	SubmittedAt   time.Time             `json:"submitted_at"`
}

// Service drives the onboarding workflow end to end
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Workflow, error)
	Status(ctx context.Context, userID string) (*StatusResponse, error)
	GetWorkflow(ctx context.Context, userID string) (*Workflow, error)
	UploadDocument(ctx context.Context, userID string, input UploadInput) (*Document, error)
	Documents(ctx context.Context, userID string) ([]Document, error)
	DeleteDocument(ctx context.Context, userID, documentID string) error
	Submit(ctx context.Context, userID string) (*Workflow, error)
	VerifyRegistry(ctx context.Context, userID, accountNumber, country string) (*VerificationResult, error)
	SubmitSuitability(ctx context.Context, userID string, input SuitabilityInput) (*SuitabilitySubmission, error)
	SubmitAppropriateness(ctx context.Context, userID string, test KnowledgeTest, experience ExperienceDeclaration) (*AppropriatenessSubmission, error)
}

type cacheEntry[T any] struct {
	value    T
	storedAt time.Time
}

type kycService struct {
	repo     Repository
	files    storage.S3Client
	bucket   string
	verifier *RegistryVerifier
	steps    *workflows.StateMachine
	logger   *zap.Logger
	now      func() time.Time

	cacheMu     sync.Mutex
	statusCache map[string]cacheEntry[StatusResponse]
	docsCache   map[string]cacheEntry[[]Document]
}

func NewService(repo Repository, files storage.S3Client, bucket string, logger *zap.Logger) Service {
	return &kycService{
		repo:        repo,
		files:       files,
		bucket:      bucket,
		verifier:    NewRegistryVerifier(),
		steps:       newStepMachine(),
		logger:      logger,
		now:         time.Now,
		statusCache: make(map[string]cacheEntry[StatusResponse]),
		docsCache:   make(map[string]cacheEntry[[]Document]),
	}
}

func (s *kycService) invalidate(userID string) {
	s.cacheMu.Lock()
	delete(s.statusCache, userID)
	delete(s.docsCache, userID)
	s.cacheMu.Unlock()
}

// Register starts (or restarts) onboarding for a user, creating the user
// record on first contact.
func (s *kycService) Register(ctx context.Context, req RegisterRequest) (*Workflow, error) {
	if req.CompanyName == "" || req.Address == "" || req.ContactPerson == "" || req.Phone == "" {
		return nil, ErrMissingFields
	}

	user, err := s.repo.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = s.newMinimalUser(req.UserID)
	}

	user.CompanyName = req.CompanyName
	user.Address = req.Address
	user.ContactPerson = req.ContactPerson
	user.Phone = req.Phone
	user.KYCStatus = StatusPending
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	workflow, err := s.repo.GetWorkflowByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		workflow = s.newWorkflow(req.UserID)
	} else {
		workflow.CurrentStep = StepDocumentCollection
		workflow.Status = WorkflowInProgress
	}
	if err := s.repo.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.invalidate(req.UserID)
	s.logger.Info("onboarding started", zap.String("user_id", req.UserID))
	return workflow, nil
}

func (s *kycService) newMinimalUser(userID string) *User {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return &User{
		ID:        userID,
		Username:  "user_" + short,
		Email:     fmt.Sprintf("user_%s@example.com", short),
		KYCStatus: StatusPending,
	}
}

func (s *kycService) newWorkflow(userID string) *Workflow {
	return &Workflow{
		ID:          uuid.NewString(),
		UserID:      userID,
		CurrentStep: StepDocumentCollection,
		Status:      WorkflowInProgress,
		Data:        json.RawMessage("{}"),
		StartedAt:   s.now(),
	}
}

// Status returns user and workflow state. Responses are cached briefly
// because the client polls this while waiting for review.
func (s *kycService) Status(ctx context.Context, userID string) (*StatusResponse, error) {
	s.cacheMu.Lock()
	if entry, ok := s.statusCache[userID]; ok && s.now().Sub(entry.storedAt) < statusCacheTTL {
		value := entry.value
		s.cacheMu.Unlock()
		return &value, nil
	}
	s.cacheMu.Unlock()

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// The client keeps its session locally; materialize the account on
		// first contact so status polling works before registration.
		user = s.newMinimalUser(userID)
		if err := s.repo.SaveUser(ctx, user); err != nil {
			return nil, err
		}
	}

	workflow, err := s.repo.GetWorkflowByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	response := StatusResponse{User: user, Workflow: workflow}
	s.cacheMu.Lock()
	s.statusCache[userID] = cacheEntry[StatusResponse]{value: response, storedAt: s.now()}
	s.cacheMu.Unlock()
	return &response, nil
}

func (s *kycService) GetWorkflow(ctx context.Context, userID string) (*Workflow, error) {
	workflow, err := s.repo.GetWorkflowByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}
	return workflow, nil
}

// UploadDocument validates and stores one file, creating the workflow on
// first upload so documents can precede formal registration.
func (s *kycService) UploadDocument(ctx context.Context, userID string, input UploadInput) (*Document, error) {
	if !validDocumentTypes[input.DocumentType] {
		return nil, ErrInvalidDocumentType
	}
	if input.Size > maxDocumentSize {
		return nil, ErrFileTooLarge
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(input.FileName), "."))
	if !allowedExtensions[ext] {
		return nil, ErrFileTypeNotAllowed
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	workflow, err := s.repo.GetWorkflowByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		workflow = s.newWorkflow(userID)
		if err := s.repo.SaveWorkflow(ctx, workflow); err != nil {
			return nil, err
		}
	}

	docID := uuid.NewString()
	key := fmt.Sprintf("kyc/%s/%s.%s", userID, docID, ext)
	if err := s.files.Upload(ctx, s.bucket, key, input.Content); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	doc := &Document{
		ID:                 docID,
		UserID:             userID,
		DocumentType:       input.DocumentType,
		FileName:           path.Base(input.FileName),
		FileSize:           input.Size,
		MimeType:           contentType,
		S3Bucket:           s.bucket,
		S3Key:              key,
		VerificationStatus: VerificationPending,
		UploadedAt:         s.now(),
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		// The metadata row is authoritative; remove the orphaned object.
		if delErr := s.files.Delete(ctx, s.bucket, key); delErr != nil {
			s.logger.Warn("failed to clean up stored document", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	s.invalidate(userID)
	return doc, nil
}

func (s *kycService) Documents(ctx context.Context, userID string) ([]Document, error) {
	s.cacheMu.Lock()
	if entry, ok := s.docsCache[userID]; ok && s.now().Sub(entry.storedAt) < documentsCacheTTL {
		value := entry.value
		s.cacheMu.Unlock()
		return value, nil
	}
	s.cacheMu.Unlock()

	docs, err := s.repo.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.docsCache[userID] = cacheEntry[[]Document]{value: docs, storedAt: s.now()}
	s.cacheMu.Unlock()
	return docs, nil
}

func (s *kycService) DeleteDocument(ctx context.Context, userID, documentID string) error {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil || doc.UserID != userID {
		return ErrDocumentNotFound
	}

	if err := s.repo.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, doc.S3Bucket, doc.S3Key); err != nil {
		s.logger.Warn("failed to delete stored document", zap.String("key", doc.S3Key), zap.Error(err))
	}

	s.invalidate(userID)
	return nil
}

// Submit hands the dossier over for review. The eligibility gate is
// re-evaluated server side regardless of what the client has shown.
func (s *kycService) Submit(ctx context.Context, userID string) (*Workflow, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	docs, err := s.repo.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}

	gate := EvaluateSubmission(docs, user.RegistryVerified)
	if !gate.Allowed {
		return nil, &SubmissionBlockedError{Gate: gate}
	}

	now := s.now()
	user.KYCStatus = StatusInReview
	user.KYCSubmittedAt = &now
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	workflow, err := s.repo.GetWorkflowByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}
	workflow.CurrentStep = StepIdentityVerification
	workflow.Status = WorkflowInProgress
	if err := s.repo.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	s.invalidate(userID)
	s.logger.Info("dossier submitted for review", zap.String("user_id", userID))
	return workflow, nil
}

// VerifyRegistry checks the registry account and, on success, records it on
// the user and advances the workflow past the verification step.
func (s *kycService) VerifyRegistry(ctx context.Context, userID, accountNumber, country string) (*VerificationResult, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	result := s.verifier.VerifyAccount(accountNumber, country)
	if !result.Verified {
		return &result, nil
	}

	now := s.now()
	user.RegistryAccount = accountNumber
	user.RegistryCountry = result.Country
	user.RegistryVerified = true
	user.RegistryVerifiedAt = &now
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	if err := s.updateWorkflow(ctx, userID, "eu_ets_verification", result, StepSuitabilityAssessment); err != nil {
		return nil, err
	}

	s.invalidate(userID)
	return &result, nil
}

func (s *kycService) SubmitSuitability(ctx context.Context, userID string, input SuitabilityInput) (*SuitabilitySubmission, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	now := s.now()
	result := AssessSuitability(input, now)
	submission := SuitabilitySubmission{
		Input:       input,
		Result:      result,
		Products:    RecommendProducts(result),
		SubmittedAt: now,
	}

	data, err := json.Marshal(submission)
	if err != nil {
		return nil, err
	}
	user.Suitability = data
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	if err := s.updateWorkflow(ctx, userID, "suitability_assessment", submission, StepAppropriatenessAssessment); err != nil {
		return nil, err
	}

	s.invalidate(userID)
	return &submission, nil
}

func (s *kycService) SubmitAppropriateness(ctx context.Context, userID string, test KnowledgeTest, experience ExperienceDeclaration) (*AppropriatenessSubmission, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	now := s.now()
	submission := AppropriatenessSubmission{
		KnowledgeTest: test,
		Experience:    experience,
		Result:        AssessAppropriateness(test, experience, now),
		SubmittedAt:   now,
	}

	data, err := json.Marshal(submission)
	if err != nil {
		return nil, err
	}
	user.Appropriateness = data
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	if err := s.updateWorkflow(ctx, userID, "appropriateness_assessment", submission, StepFinalReview); err != nil {
		return nil, err
	}

	s.invalidate(userID)
	return &submission, nil
}

// updateWorkflow stores a step result in the workflow data blob and advances
// the persisted step when the completed action warrants it. Missing
// workflows are tolerated so out-of-order clients do not fail the action.
func (s *kycService) updateWorkflow(ctx context.Context, userID, dataKey string, value any, next WorkflowStep) error {
	workflow, err := s.repo.GetWorkflowByUser(ctx, userID)
	if err != nil || workflow == nil {
		return err
	}

	data := map[string]json.RawMessage{}
	if len(workflow.Data) > 0 {
		if err := json.Unmarshal(workflow.Data, &data); err != nil {
			s.logger.Warn("resetting malformed workflow data", zap.String("user_id", userID), zap.Error(err))
			data = map[string]json.RawMessage{}
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	data[dataKey] = encoded
	if workflow.Data, err = json.Marshal(data); err != nil {
		return err
	}

	s.advanceTo(workflow, next)
	return s.repo.SaveWorkflow(ctx, workflow)
}
