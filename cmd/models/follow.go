package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Follow is a directed edge: UserID wants AuthorID's posts in their feed.
// The (user_id, author_id) pair is unique and an account can never follow itself.
type Follow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:unique_follows,priority:1" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	AuthorID  uint      `gorm:"column:author_id;not null;index;uniqueIndex:unique_follows,priority:2;check:user_id <> author_id" json:"author_id"`
	Author    *User     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE;" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// FollowAuthor inserts the user -> author edge unless it already exists. The unique
// index resolves concurrent duplicates, so a repeated call is never an error.
// It reports whether a new edge was written.
func FollowAuthor(ctx context.Context, db *gorm.DB, userID, authorID uint) (bool, error) {
	follow := Follow{UserID: userID, AuthorID: authorID}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&follow)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UnfollowAuthor removes the edge; a missing edge is not an error.
func UnfollowAuthor(ctx context.Context, db *gorm.DB, userID, authorID uint) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&Follow{}).Error
}

func IsFollowing(ctx context.Context, db *gorm.DB, userID, authorID uint) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&Follow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&count).Error
	return count > 0, err
}

// CountFollowers returns how many accounts follow userID.
func CountFollowers(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&Follow{}).Where("author_id = ?", userID).Count(&count).Error
	return count, err
}

// CountFollows returns how many accounts userID follows.
func CountFollows(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&Follow{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// FollowedPosts scopes a Post query to authors followed by userID.
func FollowedPosts(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.author_id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).Model(&Follow{}).Select("author_id").Where("user_id = ?", userID))
	}
}

// All lists every model in dependency order, for migrations and table drops.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&Post{},
		&Comment{},
		&Follow{},
	}
}
