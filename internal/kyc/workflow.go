package kyc

import (
	"nihao-carbon/carbon-trading/trading-backend/pkg/workflows"
)

// onboardingSteps is the self-service part of the workflow in order. Review
// steps after submission (identity_verification, sanctions_check) are driven
// by the admin console, not by the applicant.
var onboardingSteps = []WorkflowStep{
	StepDocumentCollection,
	StepEUETSVerification,
	StepSuitabilityAssessment,
	StepAppropriatenessAssessment,
	StepFinalReview,
}

// newStepMachine builds the allowed-transitions table. Applicants only move
// forward; review steps fan out to approved or rejected.
func newStepMachine() *workflows.StateMachine {
	transitions := make(map[string][]string)
	for i, step := range onboardingSteps {
		for _, later := range onboardingSteps[i+1:] {
			transitions[string(step)] = append(transitions[string(step)], string(later))
		}
		transitions[string(step)] = append(transitions[string(step)], string(StepIdentityVerification))
	}
	transitions[string(StepIdentityVerification)] = []string{string(StepSanctionsCheck), string(StepRejected)}
	transitions[string(StepSanctionsCheck)] = []string{string(StepFinalReview), string(StepApproved), string(StepRejected)}
	transitions[string(StepFinalReview)] = append(transitions[string(StepFinalReview)], string(StepApproved), string(StepRejected))
	return workflows.NewStateMachine(transitions)
}

func stepIndex(step WorkflowStep) int {
	for i, s := range onboardingSteps {
		if s == step {
			return i
		}
	}
	return -1
}

// advanceTo moves the workflow forward to target if it is currently at an
// earlier onboarding step. Free navigation in the client never calls this;
// only completed actions do.
func (s *kycService) advanceTo(w *Workflow, target WorkflowStep) bool {
	current := stepIndex(w.CurrentStep)
	want := stepIndex(target)
	if current == -1 || want == -1 || want <= current {
		return false
	}
	if !s.steps.CanTransition(string(w.CurrentStep), string(target)) {
		return false
	}
	w.CurrentStep = target
	return true
}

// Gate is the submission eligibility check, computed from uploaded documents
// and the registry verification flag alone.
type Gate struct {
	Allowed          bool           `json:"allowed"`
	MissingDocuments []DocumentType `json:"missing_documents,omitempty"`
	RegistryVerified bool           `json:"registry_verified"`
}

// EvaluateSubmission reports whether a dossier can be submitted: at least
// one document of every required type, and a verified registry account.
func EvaluateSubmission(docs []Document, registryVerified bool) Gate {
	uploaded := make(map[DocumentType]bool, len(docs))
	for _, doc := range docs {
		uploaded[doc.DocumentType] = true
	}

	gate := Gate{RegistryVerified: registryVerified}
	for _, required := range RequiredDocumentTypes {
		if !uploaded[required] {
			gate.MissingDocuments = append(gate.MissingDocuments, required)
		}
	}
	gate.Allowed = len(gate.MissingDocuments) == 0 && registryVerified
	return gate
}
