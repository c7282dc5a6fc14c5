// internal/models/user.go
package models

import (
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username     string  `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email        string  `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string  `json:"-" gorm:"size:255;not null"`
	Role         Role    `json:"role" gorm:"type:varchar(20);not null;default:'consumer'"`
	RefreshToken *string `json:"-" gorm:"size:512"`

	// Relationships
	Products []Product `json:"products,omitempty" gorm:"foreignKey:ManufacturerID"`
}

// SetPassword hashes and stores the password. Hashing happens only here and
// is invoked explicitly on register and password change, never from a
// persistence hook.
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// PublicUser is the read model returned by the API; it names the fields to
// expose instead of stripping sensitive ones off the full record.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}
