package models

import "gorm.io/gorm"

// User represents an application account that can authenticate with the platform.
// Staff and superuser flags grant moderator capabilities.
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:150;not null"`
	Email        string `gorm:"size:254"`
	PasswordHash string `gorm:"not null" json:"-"`
	FirstName    string `gorm:"size:150"`
	LastName     string `gorm:"size:150"`
	IsStaff      bool   `gorm:"not null;default:false"`
	IsSuperuser  bool   `gorm:"not null;default:false"`
}
