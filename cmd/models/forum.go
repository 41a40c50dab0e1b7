package models

import (
	"time"
)

// previewLength is how many characters of a post or comment make up its string form.
const previewLength = 15

type Group struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"column:title;size:200;not null" json:"title"`
	Slug        string `gorm:"column:slug;size:50;not null;uniqueIndex" json:"slug"`
	Description string `gorm:"column:description;type:text;not null" json:"description"`
}

func (g Group) String() string {
	return g.Title
}

// Post is owned by its author; deleting the author removes the post, deleting the
// group only detaches it.
type Post struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Text     string    `gorm:"column:text;type:text;not null" json:"text"`
	PubDate  time.Time `gorm:"column:pub_date;autoCreateTime;index" json:"pub_date"`
	Image    string    `gorm:"column:image;size:255" json:"image,omitempty"`
	AuthorID uint      `gorm:"column:author_id;not null;index" json:"author_id"`
	Author   *User     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE;" json:"author,omitempty"`
	GroupID  *uint     `gorm:"column:group_id;index" json:"group_id"`
	Group    *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL;" json:"group,omitempty"`
}

func (p Post) String() string {
	return preview(p.Text)
}

type Comment struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	PostID   uint      `gorm:"column:post_id;not null;index" json:"post_id"`
	Post     *Post     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE;" json:"-"`
	AuthorID uint      `gorm:"column:author_id;not null;index" json:"author_id"`
	Author   *User     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE;" json:"author,omitempty"`
	Text     string    `gorm:"column:text;type:text;not null" json:"text"`
	Created  time.Time `gorm:"column:created;autoCreateTime" json:"created"`
}

func (c Comment) String() string {
	return preview(c.Text)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return text
}

// Newest first; id breaks ties between rows created within the same clock tick.
const (
	PostOrder    = "pub_date DESC, id DESC"
	CommentOrder = "created DESC, id DESC"
)
