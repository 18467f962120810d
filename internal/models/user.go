package models

import "time"

// DefaultStatus is the status a new account starts with.
const DefaultStatus = "I am new!"

// User is an identity stored in PostgreSQL.
type User struct {
	ID        uint        `json:"id" gorm:"primaryKey"`
	Name      string      `json:"name"`
	Email     string      `json:"email" gorm:"uniqueIndex;not null"`
	Password  string      `json:"-"` // bcrypt hash, never serialized
	Status    string      `json:"status" gorm:"not null;default:'I am new!'"`
	Posts     []OwnedPost `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OwnedPost is one entry of a user's owned-post set. PostID is the Mongo ObjectID hex of the post.
type OwnedPost struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	PostID    string    `json:"post_id" gorm:"primaryKey;size:24;index"`
	CreatedAt time.Time `json:"created_at"`
}

// UserCompact is the public face of a user embedded in posts.
type UserCompact struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func (u *User) ToCompact() UserCompact {
	return UserCompact{ID: u.ID, Name: u.Name}
}

// SignupRequest defines the request body for creating an account.
type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest defines the request body for a password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FirebaseLoginRequest defines the request body for exchanging a Firebase ID token.
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken"`
}

// UpdateStatusRequest defines the request body for changing the caller's status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	UserID    uint      `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
