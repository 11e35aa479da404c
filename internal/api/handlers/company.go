package handlers

import (
	"net/http"
	"strconv"

	"au-panel/internal/api/middleware"
	"au-panel/internal/services"

	"github.com/gin-gonic/gin"
)

type CompanyHandler struct {
	companies *services.CompanyService
}

func NewCompanyHandler(companies *services.CompanyService) *CompanyHandler {
	return &CompanyHandler{companies: companies}
}

type CompanyRequest struct {
	Name   string `json:"name" binding:"required"`
	Enable int    `json:"enable"`
}

// GetCompanies lists the companies visible to the caller.
func (h *CompanyHandler) GetCompanies(c *gin.Context) {
	companies, err := h.companies.ListCompanies(middleware.Identity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies})
}

// GetCompany returns one company.
func (h *CompanyHandler) GetCompany(c *gin.Context) {
	cid, err := strconv.ParseUint(c.Param("cid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid company ID"})
		return
	}

	company, err := h.companies.GetCompany(middleware.Identity(c), uint(cid))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// CreateCompany adds a company.
func (h *CompanyHandler) CreateCompany(c *gin.Context) {
	var req CompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	company, err := h.companies.CreateCompany(middleware.Identity(c), req.Name, req.Enable)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

// UpdateCompany rewrites a company.
func (h *CompanyHandler) UpdateCompany(c *gin.Context) {
	cid, err := strconv.ParseUint(c.Param("cid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid company ID"})
		return
	}

	var req CompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	company, err := h.companies.UpdateCompany(middleware.Identity(c), uint(cid), req.Name, req.Enable)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// DeleteCompany removes a company with its apps, units and zone tree.
func (h *CompanyHandler) DeleteCompany(c *gin.Context) {
	cid, err := strconv.ParseUint(c.Param("cid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid company ID"})
		return
	}

	if err := h.companies.DeleteCompany(middleware.Identity(c), uint(cid)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Company deleted successfully"})
}
