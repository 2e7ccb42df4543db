package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/AnTengye/dealflow/middleware"
	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/service"
	"github.com/AnTengye/dealflow/workflow"
	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documents     *service.DocumentService
	maxUploadSize int64
}

func NewDocumentHandler(documents *service.DocumentService, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxUploadSize: maxUploadSize}
}

type reviewRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Notes    string `json:"notes"`
}

type acknowledgeRequest struct {
	Text string `json:"text"`
}

type signRequest struct {
	Signer    string `json:"signer"`
	Signature []byte `json:"signature"`
}

// Upload handles a multipart document upload for a deal
func (h *DocumentHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", h.maxUploadSize)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	doc, steps, err := h.documents.Upload(c.Request.Context(), middleware.GetTenant(c), c.Param("id"), service.UploadInput{
		Filename:    header.Filename,
		ContentType: contentType,
		FileType:    c.PostForm("file_type"),
		Data:        data,
		UploadedBy:  middleware.GetUsername(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document": doc,
		"steps":    steps,
	})
}

// List returns the documents of a deal
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Download(c *gin.Context) {
	doc, data, err := h.documents.Download(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", strings.ReplaceAll(doc.Filename, `"`, "")))
	c.Data(http.StatusOK, contentType, data)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), middleware.GetTenant(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

func (h *DocumentHandler) Steps(c *gin.Context) {
	steps, err := h.documents.Steps(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if steps == nil {
		steps = []model.WorkflowStep{}
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

func (h *DocumentHandler) Signatures(c *gin.Context) {
	sigs, err := h.documents.Signatures(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if sigs == nil {
		sigs = []model.Signature{}
	}
	c.JSON(http.StatusOK, gin.H{"signatures": sigs})
}

// Extract runs AI extraction. A failed extraction still answers 200 with the
// rejected step and its error.
func (h *DocumentHandler) Extract(c *gin.Context) {
	result, err := h.documents.Extract(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *DocumentHandler) RetryStep(c *gin.Context) {
	step, err := h.documents.RetryStep(c.Request.Context(), middleware.GetTenant(c), c.Param("id"), c.Param("stepId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

func (h *DocumentHandler) RequestReview(c *gin.Context) {
	doc, err := h.documents.RequestReview(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Review(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	doc, err := h.documents.Review(c.Request.Context(), middleware.GetTenant(c), c.Param("id"),
		middleware.GetUsername(c), *req.Approved, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Acknowledge(c *gin.Context) {
	var req acknowledgeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	doc, err := h.documents.Acknowledge(c.Request.Context(), middleware.GetTenant(c), c.Param("id"),
		middleware.GetUsername(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Sign applies an e-signature. The signature image arrives base64 encoded.
func (h *DocumentHandler) Sign(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	signer := req.Signer
	if signer == "" {
		signer = middleware.GetUsername(c)
	}

	sig, err := h.documents.Sign(c.Request.Context(), middleware.GetTenant(c), c.Param("id"), workflow.SignInput{
		Signer:    signer,
		Data:      req.Signature,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sig)
}
