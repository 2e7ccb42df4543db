package handler

import (
	"net/http"

	"github.com/AnTengye/dealflow/service"
	"github.com/gin-gonic/gin"
)

// SignatureHandler serves the public verification link sent with a signature
type SignatureHandler struct {
	documents *service.DocumentService
}

func NewSignatureHandler(documents *service.DocumentService) *SignatureHandler {
	return &SignatureHandler{documents: documents}
}

// Verify marks the signature behind the token verified
func (h *SignatureHandler) Verify(c *gin.Context) {
	sig, err := h.documents.VerifySignature(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          sig.ID,
		"document_id": sig.DocumentID,
		"signer":      sig.Signer,
		"status":      sig.Status,
		"signed_at":   sig.SignedAt,
		"verified_at": sig.VerifiedAt,
	})
}
