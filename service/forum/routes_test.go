package forum_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KAsare1/postly/cmd/cache"
	"github.com/KAsare1/postly/cmd/forms"
	"github.com/KAsare1/postly/cmd/models"
	"github.com/KAsare1/postly/cmd/utils"
	"github.com/KAsare1/postly/db/dbtest"
	"github.com/KAsare1/postly/service"
	"github.com/KAsare1/postly/service/forum"
	"github.com/KAsare1/postly/service/user"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var smallGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00,
	0x01, 0x00, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04,
	0x01, 0x0a, 0x00, 0x01, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x4c, 0x01, 0x00, 0x3b,
}

type testServer struct {
	db      *gorm.DB
	auth    *utils.Authenticator
	images  *utils.ImageStore
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := dbtest.New(t)
	auth := utils.NewAuthenticator("test-secret", time.Hour).
		WithUserLookup(func(ctx context.Context, userID uint) (bool, error) {
			return models.UserExists(ctx, db, userID)
		})
	images := utils.NewImageStore(t.TempDir(), "/media/")

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(utils.PageNotFound)
	forum.NewPostHandler(db, images, cache.NewLRU(16, time.Minute), 10).RegisterRoutes(router)
	user.NewHandler(db, auth, images, 10).RegisterRoutes(router)

	return &testServer{db: db, auth: auth, images: images, handler: auth.Middleware(router)}
}

func (s *testServer) do(t *testing.T, r *http.Request, as *models.User) *httptest.ResponseRecorder {
	t.Helper()
	if as != nil {
		token, _, err := s.auth.GenerateToken(as.ID)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *testServer) get(t *testing.T, path string, as *models.User) *httptest.ResponseRecorder {
	return s.do(t, httptest.NewRequest(http.MethodGet, path, nil), as)
}

func (s *testServer) post(t *testing.T, path string, values url.Values, as *models.User) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(t, r, as)
}

func (s *testServer) postMultipart(t *testing.T, path string, values url.Values, image []byte, as *models.User) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for key, vals := range values {
		for _, v := range vals {
			require.NoError(t, mw.WriteField(key, v))
		}
	}
	part, err := mw.CreateFormFile("image", "upload.gif")
	require.NoError(t, err)
	_, err = part.Write(image)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, path, body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, r, as)
}

func (s *testServer) countPosts(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, s.db.Model(&models.Post{}).Count(&count).Error)
	return count
}

type feedBody struct {
	Group *service.GroupResponse             `json:"group"`
	Page  utils.Page[service.PostResponse] `json:"page"`
}

type postBody struct {
	Author   service.AuthorResponse    `json:"author"`
	Post     service.PostResponse      `json:"post"`
	Comments []service.CommentResponse `json:"comments"`
	Form     forms.View                `json:"form"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var body T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func assertLoginRedirect(t *testing.T, w *httptest.ResponseRecorder, next string) {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, utils.LoginURL, location.Path)
	assert.Equal(t, next, location.Query().Get("next"))
}

func TestIndexPaginatesNewestFirst(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	for i := 1; i <= 15; i++ {
		dbtest.CreatePost(t, s.db, author, nil, fmt.Sprintf("post %d", i))
	}

	w := s.get(t, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[feedBody](t, w)
	assert.Len(t, first.Page.Items, 10)
	assert.Equal(t, "post 15", first.Page.Items[0].Text)
	assert.Equal(t, "leo", first.Page.Items[0].Author.Username)
	assert.True(t, first.Page.HasNext)

	second := decode[feedBody](t, s.get(t, "/?page=2", nil))
	assert.Len(t, second.Page.Items, 5)
	assert.Equal(t, "post 1", second.Page.Items[4].Text)

	clamped := decode[feedBody](t, s.get(t, "/?page=abc", nil))
	assert.Equal(t, 1, clamped.Page.Number)
}

func TestIndexIsCachedUntilAPostIsPublished(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	dbtest.CreatePost(t, s.db, author, nil, "first")

	assert.Len(t, decode[feedBody](t, s.get(t, "/", nil)).Page.Items, 1)

	// Written behind the handler's back, so the cached page stays stale.
	dbtest.CreatePost(t, s.db, author, nil, "second")
	w := s.get(t, "/", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Len(t, decode[feedBody](t, w).Page.Items, 1)

	require.Equal(t, http.StatusFound, s.post(t, "/new/", url.Values{"text": {"third"}}, author).Code)

	w = s.get(t, "/", nil)
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Len(t, decode[feedBody](t, w).Page.Items, 3)
}

func TestGroupPosts(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	group := dbtest.CreateGroup(t, s.db, "writers")
	dbtest.CreateGroup(t, s.db, "painters")
	dbtest.CreatePost(t, s.db, author, group, "in group")
	dbtest.CreatePost(t, s.db, author, nil, "no group")

	body := decode[feedBody](t, s.get(t, "/group/writers/", nil))
	require.NotNil(t, body.Group)
	assert.Equal(t, "writers", body.Group.Slug)
	require.Len(t, body.Page.Items, 1)
	assert.Equal(t, "in group", body.Page.Items[0].Text)
	assert.Equal(t, "writers", body.Page.Items[0].Group.Slug)

	assert.Empty(t, decode[feedBody](t, s.get(t, "/group/painters/", nil)).Page.Items)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/group/missing/", nil).Code)
}

func TestNewPostRequiresLogin(t *testing.T) {
	s := newTestServer(t)

	assertLoginRedirect(t, s.post(t, "/new/", url.Values{"text": {"hello"}}, nil), "/new/")
	assertLoginRedirect(t, s.get(t, "/new/", nil), "/new/")
	assert.Zero(t, s.countPosts(t))
}

func TestNewPostIsAuthoredByViewer(t *testing.T) {
	s := newTestServer(t)
	viewer := dbtest.CreateUser(t, s.db, "leo")
	other := dbtest.CreateUser(t, s.db, "anna")
	group := dbtest.CreateGroup(t, s.db, "writers")

	w := s.post(t, "/new/", url.Values{
		"text":   {"hello world"},
		"group":  {fmt.Sprint(group.ID)},
		"author": {fmt.Sprint(other.ID)},
	}, viewer)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, int64(1), s.countPosts(t))

	var post models.Post
	require.NoError(t, s.db.First(&post).Error)
	assert.Equal(t, "hello world", post.Text)
	assert.Equal(t, viewer.ID, post.AuthorID)
	require.NotNil(t, post.GroupID)
	assert.Equal(t, group.ID, *post.GroupID)
}

func TestNewPostValidation(t *testing.T) {
	s := newTestServer(t)
	viewer := dbtest.CreateUser(t, s.db, "leo")

	tests := []struct {
		name   string
		values url.Values
		field  string
	}{
		{"blank text", url.Values{"text": {"  "}}, "text"},
		{"unknown group", url.Values{"text": {"hi"}, "group": {"999"}}, "group"},
		{"malformed group", url.Values{"text": {"hi"}, "group": {"writers"}}, "group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.post(t, "/new/", tt.values, viewer)
			require.Equal(t, http.StatusOK, w.Code)
			body := decode[struct {
				Form forms.View `json:"form"`
			}](t, w)
			assert.Contains(t, body.Form.Errors, tt.field)
		})
	}
	assert.Zero(t, s.countPosts(t))
}

func TestNewPostStoresImage(t *testing.T) {
	s := newTestServer(t)
	viewer := dbtest.CreateUser(t, s.db, "leo")

	w := s.postMultipart(t, "/new/", url.Values{"text": {"with picture"}}, smallGIF, viewer)
	require.Equal(t, http.StatusFound, w.Code)

	var post models.Post
	require.NoError(t, s.db.First(&post).Error)
	require.NotEmpty(t, post.Image)
	_, err := os.Stat(filepath.Join(s.images.Root, filepath.FromSlash(post.Image)))
	assert.NoError(t, err)

	view := decode[postBody](t, s.get(t, service.PostURL("leo", post.ID), nil))
	assert.Equal(t, "/media/"+post.Image, view.Post.Image)
}

func TestNewPostRejectsNonImage(t *testing.T) {
	s := newTestServer(t)
	viewer := dbtest.CreateUser(t, s.db, "leo")

	w := s.postMultipart(t, "/new/", url.Values{"text": {"with picture"}}, []byte("plain text"), viewer)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Form forms.View `json:"form"`
	}](t, w)
	assert.Equal(t, []string{forms.MsgInvalidImage}, body.Form.Errors["image"])
	assert.Zero(t, s.countPosts(t))
}

func TestPostView(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	reader := dbtest.CreateUser(t, s.db, "anna")
	post := dbtest.CreatePost(t, s.db, author, nil, "war and peace")
	require.NoError(t, s.db.Create(&models.Comment{PostID: post.ID, AuthorID: reader.ID, Text: "older"}).Error)
	require.NoError(t, s.db.Create(&models.Comment{PostID: post.ID, AuthorID: reader.ID, Text: "newer"}).Error)

	w := s.get(t, service.PostURL("leo", post.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[postBody](t, w)
	assert.Equal(t, "leo", body.Author.Username)
	assert.Equal(t, "war and peace", body.Post.Text)
	require.Len(t, body.Comments, 2)
	assert.Equal(t, "newer", body.Comments[0].Text)
	assert.Equal(t, "anna", body.Comments[0].Author.Username)
	assert.Empty(t, body.Form.Errors)

	assert.Equal(t, http.StatusNotFound, s.get(t, service.PostURL("anna", post.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, service.PostURL("nobody", post.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, service.PostURL("leo", post.ID+100), nil).Code)
}

func TestPostEdit(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	other := dbtest.CreateUser(t, s.db, "anna")
	group := dbtest.CreateGroup(t, s.db, "writers")
	post := dbtest.CreatePost(t, s.db, author, group, "draft")
	postURL := service.PostURL("leo", post.ID)
	editURL := postURL + "edit/"

	reload := func() models.Post {
		var p models.Post
		require.NoError(t, s.db.First(&p, post.ID).Error)
		return p
	}

	t.Run("guest", func(t *testing.T) {
		assertLoginRedirect(t, s.post(t, editURL, url.Values{"text": {"hacked"}}, nil), editURL)
		assert.Equal(t, "draft", reload().Text)
	})

	t.Run("someone else", func(t *testing.T) {
		w := s.post(t, editURL, url.Values{"text": {"hacked"}}, other)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, postURL, w.Header().Get("Location"))
		assert.Equal(t, "draft", reload().Text)

		w = s.get(t, editURL, other)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, postURL, w.Header().Get("Location"))
	})

	t.Run("author form", func(t *testing.T) {
		w := s.get(t, editURL, author)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Form struct {
				Fields forms.PostForm `json:"fields"`
			} `json:"form"`
		}](t, w)
		assert.Equal(t, "draft", body.Form.Fields.Text)
		require.NotNil(t, body.Form.Fields.Group)
		assert.Equal(t, group.ID, *body.Form.Fields.Group)
	})

	t.Run("author invalid", func(t *testing.T) {
		w := s.post(t, editURL, url.Values{"text": {""}}, author)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "draft", reload().Text)
	})

	t.Run("author", func(t *testing.T) {
		w := s.post(t, editURL, url.Values{"text": {"final"}}, author)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, postURL, w.Header().Get("Location"))

		updated := reload()
		assert.Equal(t, "final", updated.Text)
		assert.Nil(t, updated.GroupID)
		assert.Equal(t, author.ID, updated.AuthorID)
		assert.Equal(t, int64(1), s.countPosts(t))
	})

	assert.Equal(t, http.StatusNotFound, s.get(t, service.PostURL("anna", post.ID)+"edit/", author).Code)
}

func TestAddComment(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	reader := dbtest.CreateUser(t, s.db, "anna")
	post := dbtest.CreatePost(t, s.db, author, nil, "war and peace")
	decoy := dbtest.CreatePost(t, s.db, reader, nil, "decoy")
	postURL := service.PostURL("leo", post.ID)
	commentURL := postURL + "comment/"

	countComments := func() int64 {
		var count int64
		require.NoError(t, s.db.Model(&models.Comment{}).Count(&count).Error)
		return count
	}

	assertLoginRedirect(t, s.post(t, commentURL, url.Values{"text": {"hi"}}, nil), commentURL)
	assert.Zero(t, countComments())

	w := s.get(t, commentURL, reader)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, postURL, w.Header().Get("Location"))

	w = s.post(t, commentURL, url.Values{"text": {""}}, reader)
	require.Equal(t, http.StatusOK, w.Code)
	invalid := decode[postBody](t, w)
	assert.Equal(t, []string{forms.MsgRequired}, invalid.Form.Errors["text"])
	assert.Equal(t, "war and peace", invalid.Post.Text)
	assert.Zero(t, countComments())

	w = s.post(t, commentURL, url.Values{
		"text":   {"great read"},
		"author": {fmt.Sprint(author.ID)},
		"post":   {fmt.Sprint(decoy.ID)},
	}, reader)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, postURL, w.Header().Get("Location"))

	var comment models.Comment
	require.NoError(t, s.db.First(&comment).Error)
	assert.Equal(t, "great read", comment.Text)
	assert.Equal(t, reader.ID, comment.AuthorID)
	assert.Equal(t, post.ID, comment.PostID)
	assert.Equal(t, int64(1), countComments())

	view := decode[postBody](t, s.get(t, postURL, nil))
	require.Len(t, view.Comments, 1)
	assert.Equal(t, "anna", view.Comments[0].Author.Username)
}

func TestFollowIndex(t *testing.T) {
	s := newTestServer(t)
	reader := dbtest.CreateUser(t, s.db, "anna")
	followed := dbtest.CreateUser(t, s.db, "leo")
	stranger := dbtest.CreateUser(t, s.db, "fyodor")
	dbtest.CreatePost(t, s.db, followed, nil, "followed post")
	dbtest.CreatePost(t, s.db, stranger, nil, "stranger post")

	assertLoginRedirect(t, s.get(t, "/follow/", nil), "/follow/")

	assert.Empty(t, decode[feedBody](t, s.get(t, "/follow/", reader)).Page.Items)

	require.Equal(t, http.StatusFound, s.get(t, "/leo/follow/", reader).Code)

	items := decode[feedBody](t, s.get(t, "/follow/", reader)).Page.Items
	require.Len(t, items, 1)
	assert.Equal(t, "followed post", items[0].Text)
	require.NotNil(t, items[0].Author)
	assert.Equal(t, followed.Username, items[0].Author.Username)

	assert.Empty(t, decode[feedBody](t, s.get(t, "/follow/", stranger)).Page.Items)

	require.Equal(t, http.StatusFound, s.get(t, "/leo/unfollow/", reader).Code)
	assert.Empty(t, decode[feedBody](t, s.get(t, "/follow/", reader)).Page.Items)
}

func TestDeletedUserIsTreatedAsGuest(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	ghost := dbtest.CreateUser(t, s.db, "ghost")
	post := dbtest.CreatePost(t, s.db, author, nil, "war and peace")
	commentURL := service.PostURL("leo", post.ID) + "comment/"

	require.NoError(t, s.db.Delete(&models.User{}, ghost.ID).Error)

	assertLoginRedirect(t, s.post(t, "/new/", url.Values{"text": {"from beyond"}}, ghost), "/new/")
	assert.Equal(t, int64(1), s.countPosts(t))

	assertLoginRedirect(t, s.post(t, commentURL, url.Values{"text": {"boo"}}, ghost), commentURL)
	var comments int64
	require.NoError(t, s.db.Model(&models.Comment{}).Count(&comments).Error)
	assert.Zero(t, comments)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.get(t, "/a/b/c/d/", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Page not found","path":"/a/b/c/d/"}`, w.Body.String())
}
