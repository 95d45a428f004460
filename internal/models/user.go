package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is the principal resolved by the authentication gate. Capability flags
// drive the permission rules; the rest of the platform treats this type as an
// opaque identity.
type User struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FullName     string

	IsActive   bool `gorm:"not null;default:true"`
	IsAdmin    bool `gorm:"not null;default:false"`
	IsReadOnly bool `gorm:"not null;default:false"`
	IsInternal bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VerifyPassword checks a plaintext password against the stored bcrypt hash.
func (u *User) VerifyPassword(password string) bool {
	if u.PasswordHash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// IsRegularUser reports whether the user has write capability.
func (u *User) IsRegularUser() bool {
	return !u.IsReadOnly
}

// CheckOwner reports whether other is this user. Users own themselves;
// this is the ownership capability consumed by the permission rules.
func (u *User) CheckOwner(other *User) bool {
	return other != nil && other.ID == u.ID
}
