package domain

// User is the read-only profile slice the realtime layer needs to render fallback text.
type User struct {
	ID          UserID
	Username    string
	DisplayName string
}

// Name returns the best human-readable label for the user.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
