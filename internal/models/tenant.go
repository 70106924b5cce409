package models

// Tenant is the gate record for one company. Inactive tenants short-circuit
// all message processing.
type Tenant struct {
	CompanyID string `json:"company_id"`
	Active    bool   `json:"active"`
}
