package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"column:username;size:150;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"column:email;size:255" json:"email,omitempty"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	DateJoined   time.Time `gorm:"column:date_joined;autoCreateTime" json:"date_joined"`
}

func (u User) String() string {
	return u.Username
}

// UserExists reports whether an account with the given id is still present.
func UserExists(ctx context.Context, db *gorm.DB, id uint) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
