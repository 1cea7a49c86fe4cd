package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"okrtrack/internal/core/apperror"
	"okrtrack/internal/core/tenant"
	"okrtrack/internal/infrastructure/http/v1/dto"
)

// OrganizationAdmin is the directory surface used by system owners.
type OrganizationAdmin interface {
	ListOrganizations(ctx context.Context) ([]*tenant.Organization, error)
	CreateOrganization(ctx context.Context, slug, name, planID string) (*tenant.Organization, error)
}

// OrganizationHandler serves the system-owner tenant admin routes.
type OrganizationHandler struct {
	*BaseHandler
	orgs         OrganizationAdmin
	errSlugTaken error
}

// NewOrganizationHandler creates an organization handler. errSlugTaken is
// the directory's duplicate-slug sentinel.
func NewOrganizationHandler(base *BaseHandler, orgs OrganizationAdmin, errSlugTaken error) *OrganizationHandler {
	return &OrganizationHandler{
		BaseHandler:  base,
		orgs:         orgs,
		errSlugTaken: errSlugTaken,
	}
}

// List handles GET /admin/organizations.
func (h *OrganizationHandler) List(c *gin.Context) {
	orgs, err := h.orgs.ListOrganizations(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	List(c, orgs, dto.PaginationRequest{Limit: len(orgs)})
}

// Create handles POST /admin/organizations.
func (h *OrganizationHandler) Create(c *gin.Context) {
	var req dto.CreateOrganizationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	org, err := h.orgs.CreateOrganization(c.Request.Context(), req.Slug, req.Name, req.PlanOrDefault())
	if err != nil {
		if h.errSlugTaken != nil && errors.Is(err, h.errSlugTaken) {
			h.Error(c, apperror.NewDuplicate("organization", "slug", req.Slug))
			return
		}
		h.Error(c, err)
		return
	}
	h.Created(c, org)
}

// Current handles GET /org/:slug. It returns the organization resolved by
// the OrgScope middleware.
func (h *OrganizationHandler) Current(c *gin.Context) {
	v, ok := c.Get("organization")
	if !ok {
		h.Error(c, apperror.NewTenantAccessDenied())
		return
	}
	h.OK(c, v)
}
