package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleMerchant Role = "merchant"
)

// Principal is the verified caller behind a bearer token.
type Principal struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func (p Principal) IsMerchant() bool { return p.Role == RoleMerchant }
