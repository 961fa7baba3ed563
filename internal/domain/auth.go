package domain

// StaffRole enumerates roles carried in identity tokens.
type StaffRole string

const (
	StaffRoleAgent StaffRole = "AGENT"
	StaffRoleAdmin StaffRole = "ADMIN"
)

// Identity is the acting user as supplied by the identity provider.
type Identity struct {
	ID   string
	Name string
	Role StaffRole
}
