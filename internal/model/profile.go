package model

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Profile is the sender display record joined onto messages and sessions.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AvatarURL string `json:"avatar_url"`
	Role      Role   `json:"role"`
}

// DisplayName is "First Last", falling back to the email address.
func (p *Profile) DisplayName() string {
	if p.FirstName == "" && p.LastName == "" {
		return p.Email
	}
	if p.LastName == "" {
		return p.FirstName
	}
	if p.FirstName == "" {
		return p.LastName
	}
	return p.FirstName + " " + p.LastName
}
