package service

import (
	"fmt"
	"net/url"
	"time"

	"github.com/KAsare1/postly/cmd/models"
	"github.com/KAsare1/postly/cmd/utils"
	"github.com/samber/lo"
)

type AuthorResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

type GroupResponse struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type PostResponse struct {
	ID      uint            `json:"id"`
	Text    string          `json:"text"`
	PubDate time.Time       `json:"pub_date"`
	Image   string          `json:"image,omitempty"`
	URL     string          `json:"url"`
	Author  *AuthorResponse `json:"author,omitempty"`
	Group   *GroupResponse  `json:"group,omitempty"`
}

type CommentResponse struct {
	ID      uint            `json:"id"`
	Text    string          `json:"text"`
	Created time.Time       `json:"created"`
	Author  *AuthorResponse `json:"author,omitempty"`
}

func NewAuthorResponse(u *models.User) *AuthorResponse {
	if u == nil {
		return nil
	}
	return &AuthorResponse{ID: u.ID, Username: u.Username}
}

func NewGroupResponse(g *models.Group) *GroupResponse {
	if g == nil {
		return nil
	}
	return &GroupResponse{ID: g.ID, Title: g.Title, Slug: g.Slug, Description: g.Description}
}

func NewPostResponse(p models.Post, images *utils.ImageStore) PostResponse {
	resp := PostResponse{
		ID:      p.ID,
		Text:    p.Text,
		PubDate: p.PubDate,
		Image:   images.PublicURL(p.Image),
		Author:  NewAuthorResponse(p.Author),
		Group:   NewGroupResponse(p.Group),
	}
	if p.Author != nil {
		resp.URL = PostURL(p.Author.Username, p.ID)
	}
	return resp
}

func NewCommentResponse(c models.Comment, _ int) CommentResponse {
	return CommentResponse{
		ID:      c.ID,
		Text:    c.Text,
		Created: c.Created,
		Author:  NewAuthorResponse(c.Author),
	}
}

// PostPage converts a page of posts for rendering.
func PostPage(page *utils.Page[models.Post], images *utils.ImageStore) *utils.Page[PostResponse] {
	return &utils.Page[PostResponse]{
		Number:      page.Number,
		NumPages:    page.NumPages,
		Count:       page.Count,
		HasNext:     page.HasNext,
		HasPrevious: page.HasPrevious,
		Items: lo.Map(page.Items, func(p models.Post, _ int) PostResponse {
			return NewPostResponse(p, images)
		}),
	}
}

func Groups(groups []models.Group) []GroupResponse {
	return lo.Map(groups, func(g models.Group, _ int) GroupResponse {
		return *NewGroupResponse(&g)
	})
}

func ProfileURL(username string) string {
	return "/" + url.PathEscape(username) + "/"
}

func PostURL(username string, postID uint) string {
	return fmt.Sprintf("/%s/%d/", url.PathEscape(username), postID)
}
