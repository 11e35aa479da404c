package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"au-panel/internal/api/middleware"
	"au-panel/internal/services"

	"github.com/gin-gonic/gin"
)

type ApplicationHandler struct {
	apps   *services.AppService
	deploy *services.DeployService
}

func NewApplicationHandler(apps *services.AppService, deploy *services.DeployService) *ApplicationHandler {
	return &ApplicationHandler{apps: apps, deploy: deploy}
}

// readUpload pulls the metadata JSON and the bundle archive out of a
// multipart request. The file part may be optional.
func readUpload(c *gin.Context, dataField string, fileRequired bool, out any) (bundleName string, archive []byte, ok bool) {
	raw := c.PostForm(dataField)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": dataField + " form field required"})
		return "", nil, false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + dataField, "details": err.Error()})
		return "", nil, false
	}

	header, err := c.FormFile("file")
	if err != nil {
		if !fileRequired {
			return "", nil, true
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Bundle archive required"})
		return "", nil, false
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return "", nil, false
	}
	defer f.Close()

	archive, err = io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return "", nil, false
	}
	return filepath.Base(header.Filename), archive, true
}

// GetApplications lists the cached applications visible to the caller.
func (h *ApplicationHandler) GetApplications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"applications": h.apps.List(middleware.Identity(c))})
}

// GetApplication returns one application.
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	aid, err := strconv.ParseUint(c.Param("aid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application ID"})
		return
	}

	app, err := h.apps.Get(middleware.Identity(c), uint(aid))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// GetPorts returns the port high-water marks for the next deployment.
func (h *ApplicationHandler) GetPorts(c *gin.Context) {
	c.JSON(http.StatusOK, h.apps.Ports())
}

// CreateApplication deploys a new zone from a multipart upload: an
// appunit_data JSON part and the bundle archive.
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	var data services.AppData
	bundleName, archive, ok := readUpload(c, "appunit_data", true, &data)
	if !ok {
		return
	}

	app, err := h.apps.Create(c.Request.Context(), middleware.Identity(c), data, bundleName, archive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// UpdateApplication rewrites the database row of an application.
func (h *ApplicationHandler) UpdateApplication(c *gin.Context) {
	aid, err := strconv.ParseUint(c.Param("aid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application ID"})
		return
	}

	var data services.AppData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	app, err := h.apps.Update(middleware.Identity(c), uint(aid), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// DeleteApplication quarantines the zone and removes the app. The owning
// company comes in as a query parameter.
func (h *ApplicationHandler) DeleteApplication(c *gin.Context) {
	aid, err := strconv.ParseUint(c.Param("aid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application ID"})
		return
	}
	cid, err := strconv.ParseUint(c.Query("cid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid company ID"})
		return
	}

	if err := h.apps.Delete(c.Request.Context(), middleware.Identity(c), uint(cid), uint(aid)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Application deleted successfully"})
}

// StartApplication runs the start script of a zone and returns its output.
func (h *ApplicationHandler) StartApplication(c *gin.Context) {
	if !middleware.Identity(c).Role.CanManage() {
		c.JSON(http.StatusForbidden, gin.H{"error": "operation not permitted for this role"})
		return
	}

	cname := c.Query("cname")
	zid := c.Query("zid")
	if cname == "" || zid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cname and zid query parameters required"})
		return
	}

	result, err := h.deploy.Run(c.Request.Context(), cname, zid)
	if err != nil {
		if result != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
