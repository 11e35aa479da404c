package handlers

import (
	"net/http"
	"strconv"

	"au-panel/internal/api/middleware"
	"au-panel/internal/services"

	"github.com/gin-gonic/gin"
)

type AppUnitHandler struct {
	units *services.AppUnitService
}

func NewAppUnitHandler(units *services.AppUnitService) *AppUnitHandler {
	return &AppUnitHandler{units: units}
}

func paramUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(v), true
}

// GetAppUnits lists every unit of one zone.
func (h *AppUnitHandler) GetAppUnits(c *gin.Context) {
	cid, ok := paramUint(c, "cid")
	if !ok {
		return
	}

	units, err := h.units.List(middleware.Identity(c), cid, c.Param("zid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appunits": units})
}

// GetAppUnit returns one unit.
func (h *AppUnitHandler) GetAppUnit(c *gin.Context) {
	cid, ok := paramUint(c, "cid")
	if !ok {
		return
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}

	unit, err := h.units.Get(middleware.Identity(c), cid, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// AddAppUnit deploys a new unit into a zone from a multipart upload.
func (h *AppUnitHandler) AddAppUnit(c *gin.Context) {
	cid, ok := paramUint(c, "cid")
	if !ok {
		return
	}

	var data services.AppUnitData
	bundleName, archive, ok := readUpload(c, "appunit_data", true, &data)
	if !ok {
		return
	}

	unit, err := h.units.Add(c.Request.Context(), middleware.Identity(c), cid, c.Param("zid"), data, bundleName, archive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

// UpdateAppUnit modifies a unit. The bundle archive is optional; without
// one only the descriptor and the row change.
func (h *AppUnitHandler) UpdateAppUnit(c *gin.Context) {
	cid, ok := paramUint(c, "cid")
	if !ok {
		return
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}

	var data services.AppUnitData
	bundleName, archive, ok := readUpload(c, "appunit_data", false, &data)
	if !ok {
		return
	}

	unit, err := h.units.Update(c.Request.Context(), middleware.Identity(c), cid, id, data, bundleName, archive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// DeleteAppUnit removes a unit from its zone and quarantines its install.
func (h *AppUnitHandler) DeleteAppUnit(c *gin.Context) {
	cid, ok := paramUint(c, "cid")
	if !ok {
		return
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}

	if err := h.units.Delete(c.Request.Context(), middleware.Identity(c), cid, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "App unit deleted successfully"})
}
