package models

// User is an operator account. Password holds a bcrypt hash and never leaves
// the server.
type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Username string `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Password string `gorm:"size:72;not null" json:"-"`
}

// NewUser holds the caller-supplied fields for CreateUser.
type NewUser struct {
	Username string
	Password string
}
