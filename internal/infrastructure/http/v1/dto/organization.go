package dto

// CreateOrganizationRequest is the admin request for a new tenant.
type CreateOrganizationRequest struct {
	Slug string `json:"slug" binding:"required"`
	Name string `json:"name" binding:"required"`
	Plan string `json:"plan"`
}

// PlanOrDefault returns the requested plan or "free".
func (r CreateOrganizationRequest) PlanOrDefault() string {
	if r.Plan == "" {
		return "free"
	}
	return r.Plan
}
