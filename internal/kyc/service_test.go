package kyc

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/pkg/storage"
)

type memRepository struct {
	mu        sync.Mutex
	users     map[string]User
	workflows map[string]Workflow
	documents map[string]Document
}

func newMemRepository() *memRepository {
	return &memRepository{
		users:     make(map[string]User),
		workflows: make(map[string]Workflow),
		documents: make(map[string]Document),
	}
}

func (r *memRepository) GetUser(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *memRepository) SaveUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = *user
	return nil
}

func (r *memRepository) ListUsers(_ context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memRepository) GetWorkflowByUser(_ context.Context, userID string) (*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workflows[userID]; ok {
		return &w, nil
	}
	return nil, nil
}

func (r *memRepository) SaveWorkflow(_ context.Context, workflow *Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[workflow.UserID] = *workflow
	return nil
}

func (r *memRepository) CreateDocument(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[doc.ID] = *doc
	return nil
}

func (r *memRepository) GetDocument(_ context.Context, id string) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.documents[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (r *memRepository) ListDocuments(_ context.Context, userID string) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, d := range r.documents {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memRepository) DeleteDocument(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.documents, id)
	return nil
}

func newTestService(t *testing.T) (Service, *memRepository) {
	t.Helper()
	repo := newMemRepository()
	svc := NewService(repo, storage.NewLocalS3Client(), "kyc-documents", zap.NewNop())
	return svc, repo
}

func register(t *testing.T, svc Service, userID string) {
	t.Helper()
	_, err := svc.Register(context.Background(), RegisterRequest{
		UserID:        userID,
		CompanyName:   "Steel Works SRL",
		Address:       "Bd. Unirii 1, Bucharest",
		ContactPerson: "Ana Pop",
		Phone:         "+40211234567",
	})
	require.NoError(t, err)
}

func uploadDoc(t *testing.T, svc Service, userID string, docType DocumentType) *Document {
	t.Helper()
	doc, err := svc.UploadDocument(context.Background(), userID, UploadInput{
		DocumentType: docType,
		FileName:     string(docType) + ".pdf",
		ContentType:  "application/pdf",
		Size:         1024,
		Content:      strings.NewReader("%PDF-1.4 test"),
	})
	require.NoError(t, err)
	return doc
}

func TestEvaluateSubmissionGate(t *testing.T) {
	docs := []Document{
		{DocumentType: DocCompanyRegistration},
		{DocumentType: DocFinancialStatement},
		{DocumentType: DocTaxCertificate},
		{DocumentType: DocEUETSProof},
	}

	gate := EvaluateSubmission(docs, true)
	assert.False(t, gate.Allowed)
	assert.Equal(t, []DocumentType{DocPowerOfAttorney}, gate.MissingDocuments)

	docs = append(docs, Document{DocumentType: DocPowerOfAttorney})
	gate = EvaluateSubmission(docs, false)
	assert.False(t, gate.Allowed)
	assert.Empty(t, gate.MissingDocuments)

	gate = EvaluateSubmission(docs, true)
	assert.True(t, gate.Allowed)
}

func TestEvaluateSubmissionDuplicatesDoNotSubstitute(t *testing.T) {
	// Five uploads of the same type still leave four types missing.
	docs := make([]Document, 5)
	for i := range docs {
		docs[i] = Document{DocumentType: DocCompanyRegistration}
	}
	gate := EvaluateSubmission(docs, true)
	assert.False(t, gate.Allowed)
	assert.Len(t, gate.MissingDocuments, 4)
}

func TestRegisterCreatesWorkflowAtDocumentCollection(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "user-1")

	status, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StepDocumentCollection, status.Workflow.CurrentStep)
	assert.Equal(t, WorkflowInProgress, status.Workflow.Status)
	assert.Equal(t, StatusPending, status.User.KYCStatus)
}

func TestStatusBeforeRegistrationReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Status(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "user-1")

	_, err := svc.UploadDocument(context.Background(), "user-1", UploadInput{
		DocumentType: "bank_statement",
		FileName:     "doc.pdf",
		Size:         100,
		Content:      strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrInvalidDocumentType)

	_, err = svc.UploadDocument(context.Background(), "user-1", UploadInput{
		DocumentType: DocTaxCertificate,
		FileName:     "doc.exe",
		Size:         100,
		Content:      strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrFileTypeNotAllowed)

	_, err = svc.UploadDocument(context.Background(), "user-1", UploadInput{
		DocumentType: DocTaxCertificate,
		FileName:     "doc.pdf",
		Size:         17 * 1024 * 1024,
		Content:      strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestSubmitBlockedUntilGateSatisfied(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "user-1")

	for _, docType := range RequiredDocumentTypes[:4] {
		uploadDoc(t, svc, "user-1", docType)
	}

	_, err := svc.Submit(context.Background(), "user-1")
	var blocked *SubmissionBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, []DocumentType{DocPowerOfAttorney}, blocked.Gate.MissingDocuments)

	uploadDoc(t, svc, "user-1", DocPowerOfAttorney)

	// Documents complete but the registry account is still unverified.
	_, err = svc.Submit(context.Background(), "user-1")
	require.ErrorAs(t, err, &blocked)
	assert.Empty(t, blocked.Gate.MissingDocuments)
	assert.False(t, blocked.Gate.RegistryVerified)

	_, err = svc.VerifyRegistry(context.Background(), "user-1", "EU12345678", "RO")
	require.NoError(t, err)

	workflow, err := svc.Submit(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StepIdentityVerification, workflow.CurrentStep)
}

func TestSubmitSetsUserInReview(t *testing.T) {
	svc, repo := newTestService(t)
	register(t, svc, "user-1")
	for _, docType := range RequiredDocumentTypes {
		uploadDoc(t, svc, "user-1", docType)
	}
	_, err := svc.VerifyRegistry(context.Background(), "user-1", "EU12345678", "RO")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "user-1")
	require.NoError(t, err)

	user, err := repo.GetUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, user.KYCStatus)
	require.NotNil(t, user.KYCSubmittedAt)
}

func TestStepAdvancesOnActionsOnly(t *testing.T) {
	svc, repo := newTestService(t)
	register(t, svc, "user-1")

	// Uploading documents does not move the step.
	uploadDoc(t, svc, "user-1", DocCompanyRegistration)
	w, _ := repo.GetWorkflowByUser(context.Background(), "user-1")
	assert.Equal(t, StepDocumentCollection, w.CurrentStep)

	// A successful registry verification advances past the verification step.
	_, err := svc.VerifyRegistry(context.Background(), "user-1", "EU12345678", "RO")
	require.NoError(t, err)
	w, _ = repo.GetWorkflowByUser(context.Background(), "user-1")
	assert.Equal(t, StepSuitabilityAssessment, w.CurrentStep)

	_, err = svc.SubmitSuitability(context.Background(), "user-1", SuitabilityInput{
		Objectives: "compliance", RiskTolerance: "moderate", Experience: "advanced", KnowledgeScore: 80,
	})
	require.NoError(t, err)
	w, _ = repo.GetWorkflowByUser(context.Background(), "user-1")
	assert.Equal(t, StepAppropriatenessAssessment, w.CurrentStep)

	_, err = svc.SubmitAppropriateness(context.Background(), "user-1",
		KnowledgeTest{CorrectAnswers: 8, TotalQuestions: 10},
		ExperienceDeclaration{HasFinancialExperience: true})
	require.NoError(t, err)
	w, _ = repo.GetWorkflowByUser(context.Background(), "user-1")
	assert.Equal(t, StepFinalReview, w.CurrentStep)

	// Repeating an earlier action never moves the step backwards.
	_, err = svc.VerifyRegistry(context.Background(), "user-1", "EU12345678", "RO")
	require.NoError(t, err)
	w, _ = repo.GetWorkflowByUser(context.Background(), "user-1")
	assert.Equal(t, StepFinalReview, w.CurrentStep)
}

func TestFailedRegistryVerificationLeavesStateUntouched(t *testing.T) {
	svc, repo := newTestService(t)
	register(t, svc, "user-1")

	result, err := svc.VerifyRegistry(context.Background(), "user-1", "bad!", "RO")
	require.NoError(t, err)
	assert.False(t, result.Verified)

	user, _ := repo.GetUser(context.Background(), "user-1")
	assert.False(t, user.RegistryVerified)
	w, _ := repo.GetWorkflowByUser(context.Background(), "user-1")
	assert.Equal(t, StepDocumentCollection, w.CurrentStep)
}

func TestDeleteDocumentScopedToOwner(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "user-1")
	register(t, svc, "user-2")
	doc := uploadDoc(t, svc, "user-1", DocTaxCertificate)

	err := svc.DeleteDocument(context.Background(), "user-2", doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	err = svc.DeleteDocument(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)

	docs, err := svc.Documents(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestAssessmentsStoredOnUser(t *testing.T) {
	svc, repo := newTestService(t)
	register(t, svc, "user-1")

	_, err := svc.SubmitSuitability(context.Background(), "user-1", SuitabilityInput{
		Objectives: "hedging", RiskTolerance: "moderate", Experience: "intermediate", KnowledgeScore: 75,
	})
	require.NoError(t, err)

	user, _ := repo.GetUser(context.Background(), "user-1")
	assert.NotEmpty(t, user.Suitability)
	assert.Contains(t, string(user.Suitability), "suitable")
}
