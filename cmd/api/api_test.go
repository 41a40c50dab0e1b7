package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KAsare1/postly/cmd/config"
	"github.com/KAsare1/postly/cmd/models"
	"github.com/KAsare1/postly/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) (http.Handler, *gorm.DB, *config.Config) {
	t.Helper()

	cfg := config.Default()
	cfg.SecretKey = "test-secret"
	cfg.MediaRoot = t.TempDir()

	db := dbtest.New(t)
	return NewApiServer(cfg, db).Router(), db, cfg
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestFixedRoutesWinOverProfiles(t *testing.T) {
	router, db, _ := newTestRouter(t)
	dbtest.CreateUser(t, db, "leo")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/new/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/auth/login/"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leo/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nobody/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignupLoginAndPost(t *testing.T) {
	router, db, _ := newTestRouter(t)

	form := func(path string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for _, c := range cookies {
			r.AddCookie(c)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	credentials := url.Values{"username": {"leo"}, "password": {"war-and-peace"}}
	require.Equal(t, http.StatusFound, form("/auth/signup/", credentials).Code)

	login := form("/auth/login/?next=%2Fnew%2F", credentials)
	require.Equal(t, http.StatusFound, login.Code)
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)

	w := form("/new/", url.Values{"text": {"hello"}}, cookies[0])
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	var post models.Post
	require.NoError(t, db.Preload("Author").First(&post).Error)
	assert.Equal(t, "leo", post.Author.Username)
}

func TestMediaIsServed(t *testing.T) {
	router, _, cfg := newTestRouter(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.MediaRoot, "posts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.MediaRoot, "posts", "a.gif"), []byte("GIF89a"), 0644))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/media/posts/a.gif", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "GIF89a", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `postly_http_requests_total{method="GET",route="/",status="200"} 1`)
}

func TestUnknownPathIsJSON404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/y/z/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Page not found","path":"/x/y/z/"}`, w.Body.String())
}

func TestCachedIndexKeepsPerOriginCORS(t *testing.T) {
	cfg := config.Default()
	cfg.SecretKey = "test-secret"
	cfg.MediaRoot = t.TempDir()
	cfg.Server.AllowedOrigins = []string{"https://a.example", "https://b.example"}
	router := NewApiServer(cfg, dbtest.New(t)).Router()

	request := func(origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		return w
	}

	first := request("https://a.example")
	assert.Equal(t, "https://a.example", first.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, first.Header().Get("X-Cache"))

	second := request("https://b.example")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "https://b.example", second.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, first.Body.String(), second.Body.String())
}
