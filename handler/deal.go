package handler

import (
	"net/http"

	"github.com/AnTengye/dealflow/middleware"
	"github.com/AnTengye/dealflow/model"
	"github.com/AnTengye/dealflow/service"
	"github.com/AnTengye/dealflow/workflow"
	"github.com/gin-gonic/gin"
)

type DealHandler struct {
	deals *service.DealService
}

func NewDealHandler(deals *service.DealService) *DealHandler {
	return &DealHandler{deals: deals}
}

// DecisionResponse is the JSON form of an auto-progress evaluation
type DecisionResponse struct {
	Advanced bool        `json:"advanced"`
	From     model.Stage `json:"from"`
	To       model.Stage `json:"to,omitempty"`
	Reason   string      `json:"reason"`
	Deal     model.Deal  `json:"deal"`
	Tasks    []string    `json:"tasks,omitempty"`
}

type stageRequest struct {
	Stage string `json:"stage" binding:"required"`
}

type kycStatusRequest struct {
	KYCStatus string `json:"kyc_status" binding:"required"`
}

func (h *DealHandler) CreateContact(c *gin.Context) {
	var req service.ContactInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	contact, err := h.deals.CreateContact(c.Request.Context(), middleware.GetTenant(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (h *DealHandler) GetContact(c *gin.Context) {
	contact, err := h.deals.GetContact(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// Create handles lead intake by an authenticated operator
func (h *DealHandler) Create(c *gin.Context) {
	var req service.DealInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	deal, err := h.deals.CreateDeal(c.Request.Context(), middleware.GetTenant(c), middleware.GetUsername(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deal)
}

// Onboard is the public onboarding form. It needs no token.
func (h *DealHandler) Onboard(c *gin.Context) {
	var req service.OnboardingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	contact, deal, err := h.deals.Onboard(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"contact_id": contact.ID,
		"deal_id":    deal.ID,
		"stage":      deal.Stage,
	})
}

// List returns all deals for the current tenant
func (h *DealHandler) List(c *gin.Context) {
	deals, err := h.deals.ListDeals(c.Request.Context(), middleware.GetTenant(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if deals == nil {
		deals = []model.Deal{}
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals})
}

func (h *DealHandler) Get(c *gin.Context) {
	deal, err := h.deals.GetDeal(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) Delete(c *gin.Context) {
	if err := h.deals.DeleteDeal(c.Request.Context(), middleware.GetTenant(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deal deleted"})
}

func (h *DealHandler) AutoProgress(c *gin.Context) {
	decision, err := h.deals.EvaluateAutoProgress(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := DecisionResponse{
		Advanced: decision.Advanced,
		From:     decision.From,
		To:       decision.To,
		Reason:   decision.Reason,
		Deal:     decision.Deal,
	}
	for _, task := range workflow.Tasks(decision.Effects) {
		resp.Tasks = append(resp.Tasks, task.Title)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DealHandler) SendKYC(c *gin.Context) {
	deal, err := h.deals.SendKYCRequest(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) ArchiveDocuments(c *gin.Context) {
	deal, err := h.deals.ArchiveDocuments(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) SetStage(c *gin.Context) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	deal, err := h.deals.SetStage(c.Request.Context(), middleware.GetTenant(c), c.Param("id"), req.Stage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) SetKYCStatus(c *gin.Context) {
	var req kycStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	deal, err := h.deals.SetKYCStatus(c.Request.Context(), middleware.GetTenant(c), c.Param("id"), req.KYCStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *DealHandler) ListTasks(c *gin.Context) {
	tasks, err := h.deals.ListTasks(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *DealHandler) CompleteTask(c *gin.Context) {
	task, err := h.deals.CompleteTask(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
