package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

// User is the owner of subscriptions. Users are managed elsewhere; this
// service only reads them.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	Role      Role      `gorm:"type:varchar(16);not null;default:viewer" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u User) HasEmail() bool { return strings.TrimSpace(u.Email) != "" }

// CanSubscribe reports whether the user's role satisfies the kind's
// required permission.
func (u User) CanSubscribe(kind AlertKind) bool {
	if kind.Info().RequiresPermission == RoleUser {
		return u.Role == RoleUser || u.Role == RoleAdmin
	}
	return true
}
