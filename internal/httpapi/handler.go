package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"keywarden/pkg/errutil"
	"keywarden/services/apikey"
)

// Handler exposes the management and verification surface over HTTP. All
// mutations go through the cached service so cache invalidation is never
// skipped.
type Handler struct {
	svc *apikey.CachedService
}

func NewHandler(svc *apikey.CachedService) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	IsActive    *bool      `json:"is_active"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type createResponse struct {
	ApiKey *apikey.ApiKey `json:"api_key"`
	// Plaintext is shown exactly once; it cannot be recovered later.
	Plaintext string `json:"plaintext"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	entity, plaintext, err := h.svc.Create(c.Request.Context(), apikey.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    active,
		Scopes:      req.Scopes,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		c.Error(managementError(err))
		return
	}

	c.JSON(http.StatusCreated, createResponse{ApiKey: entity, Plaintext: plaintext})
}

func (h *Handler) Get(c *gin.Context) {
	entity, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(managementError(err))
		return
	}
	c.JSON(http.StatusOK, entity)
}

type listResponse struct {
	ApiKeys []apikey.ApiKey `json:"api_keys"`
	Total   int64           `json:"total"`
}

func (h *Handler) List(c *gin.Context) {
	var q struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.Error(errutil.BadRequest("invalid query parameters", errutil.WithErr(err)))
		return
	}

	keys, err := h.svc.List(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		c.Error(managementError(err))
		return
	}
	total, err := h.svc.Count(c.Request.Context(), apikey.Filter{})
	if err != nil {
		c.Error(managementError(err))
		return
	}

	c.JSON(http.StatusOK, listResponse{ApiKeys: keys, Total: total})
}

type searchRequest struct {
	NameContains  string     `json:"name_contains"`
	IsActive      *bool      `json:"is_active"`
	HasScope      string     `json:"has_scope"`
	ExpiresBefore *time.Time `json:"expires_before"`
	Limit         int        `json:"limit"`
	Offset        int        `json:"offset"`
}

func (r searchRequest) filter() apikey.Filter {
	return apikey.Filter{
		NameContains:  r.NameContains,
		IsActive:      r.IsActive,
		HasScope:      r.HasScope,
		ExpiresBefore: r.ExpiresBefore,
		Limit:         r.Limit,
		Offset:        r.Offset,
	}
}

func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	keys, err := h.svc.Search(c.Request.Context(), req.filter())
	if err != nil {
		c.Error(managementError(err))
		return
	}
	total, err := h.svc.Count(c.Request.Context(), req.filter())
	if err != nil {
		c.Error(managementError(err))
		return
	}

	c.JSON(http.StatusOK, listResponse{ApiKeys: keys, Total: total})
}

type updateRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	IsActive    *bool      `json:"is_active"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (h *Handler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	entity, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(managementError(err))
		return
	}

	if req.Name != nil {
		entity.Name = *req.Name
	}
	if req.Description != nil {
		entity.Description = *req.Description
	}
	if req.IsActive != nil {
		entity.IsActive = *req.IsActive
	}
	if req.Scopes != nil {
		entity.Scopes = req.Scopes
	}
	if req.ExpiresAt != nil {
		entity.ExpiresAt = req.ExpiresAt
	}

	updated, err := h.svc.Update(c.Request.Context(), entity)
	if err != nil {
		c.Error(managementError(err))
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) Activate(c *gin.Context) {
	entity, err := h.svc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(managementError(err))
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (h *Handler) Deactivate(c *gin.Context) {
	entity, err := h.svc.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(managementError(err))
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(managementError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

type verifyRequest struct {
	ApiKey         string   `json:"api_key" binding:"required"`
	RequiredScopes []string `json:"required_scopes"`
}

func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	entity, err := h.svc.VerifyWithScopes(c.Request.Context(), req.ApiKey, req.RequiredScopes)
	if err != nil {
		c.Error(verifyError(err))
		return
	}
	c.JSON(http.StatusOK, entity)
}

// WhoAmI returns the entity RequireAPIKey authenticated, as a worked example
// of protecting a route with an API key.
func (h *Handler) WhoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, EntityFromContext(c))
}

// managementError maps service errors from the CRUD surface. Unlike the
// verification surface, lookups here may say "not found" outright.
func managementError(err error) error {
	switch {
	case errors.Is(err, apikey.ErrKeyNotFound):
		return errutil.NotFound("api key not found", errutil.WithErr(err))
	case errors.Is(err, apikey.ErrKeyNotProvided):
		return errutil.BadRequest("id is required", errutil.WithErr(err))
	case errors.Is(err, apikey.ErrDuplicateKey):
		return errutil.Conflict("api key already exists", errutil.WithErr(err))
	case errors.Is(err, apikey.ErrInvalidInput):
		return errutil.ValidationFailed(err.Error(), errutil.WithErr(err))
	default:
		return errutil.Internal("internal error", errutil.WithErr(err))
	}
}
