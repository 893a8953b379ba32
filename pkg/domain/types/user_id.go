package types

// UserID identifies the owner of session and conversation memory.
// An empty UserID on a record means the record is global (shared
// document knowledge).
type UserID string

// String returns the string representation of the user ID
func (u UserID) String() string {
	return string(u)
}

// IsEmpty reports whether the user ID is unset
func (u UserID) IsEmpty() bool {
	return u == ""
}
