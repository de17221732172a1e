package kyc

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	g.POST("/register", h.Register)
	g.GET("/status", h.Status)
	g.GET("/workflow", h.Workflow)
	g.GET("/documents", h.ListDocuments)
	g.POST("/documents/upload", h.UploadDocument)
	g.DELETE("/documents/:id", h.DeleteDocument)
	g.POST("/submit", h.Submit)
	g.POST("/eu-ets-verify", h.VerifyRegistry)
	g.POST("/suitability-assessment", h.SubmitSuitability)
	g.POST("/appropriateness-assessment", h.SubmitAppropriateness)
	g.GET("/knowledge-questions", h.KnowledgeQuestions)
}

func requireUserID(c *gin.Context) (string, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID required", "code": "MISSING_USER_ID"})
		return "", false
	}
	return userID, true
}

// Register starts onboarding. Unlike the rest of the group this takes the
// user id from the body: it runs before the client has a session.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required", "code": "MISSING_USER_ID"})
		return
	}

	workflow, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrMissingFields) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required", "code": "MISSING_FIELDS"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start onboarding. Please try again.", "code": "REGISTER_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Onboarding started", "workflow": workflow})
}

func (h *Handler) Status(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	status, err := h.service.Status(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "KYC onboarding not started", "code": "KYC_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get KYC status. Please try again.", "code": "STATUS_ERROR"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) Workflow(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	workflow, err := h.service.GetWorkflow(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found", "code": "WORKFLOW_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get workflow status", "code": "WORKFLOW_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": workflow})
}

func (h *Handler) UploadDocument(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided", "code": "NO_FILE"})
		return
	}
	docType := c.PostForm("document_type")
	if docType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_type is required", "code": "MISSING_DOCUMENT_TYPE"})
		return
	}

	content, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file", "code": "INVALID_FILE"})
		return
	}
	defer content.Close()

	doc, err := h.service.UploadDocument(c.Request.Context(), userID, UploadInput{
		DocumentType: DocumentType(docType),
		FileName:     file.Filename,
		ContentType:  file.Header.Get("Content-Type"),
		Size:         file.Size,
		Content:      content,
	})
	if err != nil {
		h.writeUploadError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Document uploaded successfully", "document": doc})
}

func (h *Handler) writeUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidDocumentType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document type", "code": "INVALID_DOCUMENT_TYPE"})
	case errors.Is(err, ErrFileTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "File exceeds maximum size of 16MB", "code": "INVALID_FILE"})
	case errors.Is(err, ErrFileTypeNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "File type not allowed", "code": "INVALID_FILE"})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "USER_NOT_FOUND"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload document", "code": "UPLOAD_ERROR"})
	}
}

func (h *Handler) ListDocuments(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	docs, err := h.service.Documents(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents", "code": "DOCUMENTS_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	err := h.service.DeleteDocument(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found", "code": "DOCUMENT_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document", "code": "DELETE_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

func (h *Handler) Submit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	workflow, err := h.service.Submit(c.Request.Context(), userID)
	if err != nil {
		var blocked *SubmissionBlockedError
		switch {
		case errors.As(err, &blocked):
			if len(blocked.Gate.MissingDocuments) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":             "Missing required documents",
					"code":              "MISSING_DOCUMENTS",
					"missing_documents": blocked.Gate.MissingDocuments,
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "EU ETS Registry account not verified", "code": "REGISTRY_NOT_VERIFIED"})
		case errors.Is(err, ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "USER_NOT_FOUND"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit KYC dossier. Please try again.", "code": "SUBMIT_ERROR"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "KYC dossier submitted for review",
		"status":   StatusInReview,
		"workflow": workflow,
	})
}

type verifyRegistryRequest struct {
	AccountNumber string `json:"account_number"`
	Country       string `json:"country"`
}

func (h *Handler) VerifyRegistry(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req verifyRegistryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountNumber == "" || req.Country == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_number and country are required", "code": "MISSING_FIELDS"})
		return
	}

	result, err := h.service.VerifyRegistry(c.Request.Context(), userID, req.AccountNumber, req.Country)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "USER_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify EU ETS Registry account", "code": "VERIFY_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "EU ETS Registry verification completed", "verification": result})
}

func (h *Handler) SubmitSuitability(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var input SuitabilityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid assessment payload", "code": "INVALID_REQUEST"})
		return
	}

	submission, err := h.service.SubmitSuitability(c.Request.Context(), userID, input)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "USER_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit suitability assessment", "code": "SUITABILITY_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Suitability assessment submitted", "assessment": submission})
}

type appropriatenessRequest struct {
	KnowledgeTest KnowledgeTest         `json:"knowledge_test"`
	Experience    ExperienceDeclaration `json:"experience_declaration"`
}

func (h *Handler) SubmitAppropriateness(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req appropriatenessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid assessment payload", "code": "INVALID_REQUEST"})
		return
	}

	submission, err := h.service.SubmitAppropriateness(c.Request.Context(), userID, req.KnowledgeTest, req.Experience)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "USER_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit appropriateness assessment", "code": "APPROPRIATENESS_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Appropriateness assessment submitted", "assessment": submission})
}

// servedQuestion strips the answer key before sending questions to clients
type servedQuestion struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

func (h *Handler) KnowledgeQuestions(c *gin.Context) {
	bank := KnowledgeQuestions()
	questions := make([]servedQuestion, 0, len(bank))
	for _, q := range bank {
		questions = append(questions, servedQuestion{ID: q.ID, Question: q.Question, Options: q.Options})
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}
