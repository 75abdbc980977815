package models

// Role is the authorization role of a requester.
type Role string

// RoleAdmin sees every campaign.
const RoleAdmin Role = "admin"

// Requester is the authenticated identity a request is made on behalf of.
type Requester struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the requester has unrestricted visibility.
func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}
