package db

import (
	"context"
	"fmt"

	"github.com/KAsare1/postly/cmd/models"
	"gorm.io/gorm"
)

// CreateGroup adds a community posts can be filed under.
func CreateGroup(ctx context.Context, db *gorm.DB, title, slug, description string) (*models.Group, error) {
	group := models.Group{Title: title, Slug: slug, Description: description}
	if err := db.WithContext(ctx).Create(&group).Error; err != nil {
		return nil, fmt.Errorf("creating group %q: %w", slug, err)
	}
	return &group, nil
}

// DeleteGroup removes a group. Its posts stay and lose their group.
func DeleteGroup(ctx context.Context, db *gorm.DB, slug string) error {
	result := db.WithContext(ctx).Where("slug = ?", slug).Delete(&models.Group{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("group %q: %w", slug, gorm.ErrRecordNotFound)
	}
	return nil
}

// DeleteUser removes an account along with its posts, comments and follow edges.
func DeleteUser(ctx context.Context, db *gorm.DB, username string) error {
	result := db.WithContext(ctx).Where("username = ?", username).Delete(&models.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %q: %w", username, gorm.ErrRecordNotFound)
	}
	return nil
}
