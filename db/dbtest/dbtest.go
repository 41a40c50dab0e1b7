// Package dbtest provides throwaway databases for package tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/KAsare1/postly/cmd/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var counter atomic.Int64

// New returns a migrated in-memory SQLite database with foreign keys enforced.
// Each call gets its own database, closed when the test ends.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:dbtest%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", counter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// CreateUser inserts a user with a throwaway password hash.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, PasswordHash: "x"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func CreateGroup(t testing.TB, db *gorm.DB, slug string) *models.Group {
	t.Helper()
	group := &models.Group{Title: "Group " + slug, Slug: slug, Description: "Test group " + slug}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("Failed to create group %s: %v", slug, err)
	}
	return group
}

func CreatePost(t testing.TB, db *gorm.DB, author *models.User, group *models.Group, text string) *models.Post {
	t.Helper()
	post := &models.Post{Text: text, AuthorID: author.ID}
	if group != nil {
		post.GroupID = &group.ID
	}
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}
	return post
}
