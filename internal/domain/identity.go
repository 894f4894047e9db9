package domain

// Identity is the authenticated user attached to a connection. Immutable.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
}
