package user

import (
	"errors"
	"net/http"
	"strings"

	"github.com/KAsare1/postly/cmd/forms"
	"github.com/KAsare1/postly/cmd/models"
	"github.com/KAsare1/postly/cmd/utils"
	"github.com/KAsare1/postly/service"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	msgDuplicateUsername = "A user with that username already exists."
	msgInvalidLogin      = "Please enter a correct username and password."
)

type Handler struct {
	db       *gorm.DB
	auth     *utils.Authenticator
	images   *utils.ImageStore
	reserved []string
	pageSize int
}

func NewHandler(db *gorm.DB, auth *utils.Authenticator, images *utils.ImageStore, pageSize int) *Handler {
	return &Handler{
		db:       db,
		auth:     auth,
		images:   images,
		reserved: forms.ReservedUsernames(images.URL),
		pageSize: pageSize,
	}
}

// RegisterRoutes sets up the account and profile routes. The profile routes match
// any first path segment, so they must be registered after every fixed prefix.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/signup/", h.Signup).Methods("GET", "POST")
	router.HandleFunc("/auth/login/", h.Login).Methods("GET", "POST")
	router.HandleFunc("/auth/logout/", h.Logout).Methods("GET", "POST")

	router.HandleFunc("/{username}/", h.Profile).Methods("GET")
	router.HandleFunc("/{username}/follow/", utils.LoginRequired(h.ProfileFollow)).Methods("GET")
	router.HandleFunc("/{username}/unfollow/", utils.LoginRequired(h.ProfileUnfollow)).Methods("GET")
}

// Signup creates an account and sends the client to the login page.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"form": forms.View{Fields: forms.SignupForm{}},
		})
		return
	}

	if err := forms.Parse(r); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	form, errs := forms.BindSignup(r, h.reserved)
	if !errs.Any() {
		var existing models.User
		err := h.db.WithContext(r.Context()).Where("username = ?", form.Username).First(&existing).Error
		switch {
		case err == nil:
			errs.Add("username", msgDuplicateUsername)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			utils.WriteError(w, r, err)
			return
		}
	}
	if errs.Any() {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"form": forms.View{Fields: form, Errors: errs},
		})
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	user := models.User{
		Username:     form.Username,
		Email:        form.Email,
		PasswordHash: string(passwordHash),
	}
	if err := h.db.WithContext(r.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			errs.Add("username", msgDuplicateUsername)
			utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"form": forms.View{Fields: form, Errors: errs},
			})
			return
		}
		utils.WriteError(w, r, err)
		return
	}

	utils.Logger(r.Context()).Info("User registered", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, utils.LoginURL, http.StatusFound)
}

// Login checks the credentials and starts a session. Browsers are redirected to
// next; API clients without next get the token in the body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")

	if r.Method == http.MethodGet {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"form": forms.View{Fields: forms.LoginForm{}},
			"next": next,
		})
		return
	}

	if err := forms.Parse(r); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	if v := r.PostFormValue("next"); v != "" {
		next = v
	}

	form, errs := forms.BindLogin(r)
	var user models.User
	if !errs.Any() {
		err := h.db.WithContext(r.Context()).Where("username = ?", form.Username).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			errs.Add("__all__", msgInvalidLogin)
		case err != nil:
			utils.WriteError(w, r, err)
			return
		case bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(form.Password)) != nil:
			errs.Add("__all__", msgInvalidLogin)
		}
	}
	if errs.Any() {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"form": forms.View{Fields: form, Errors: errs},
			"next": next,
		})
		return
	}

	token, err := h.auth.StartSession(w, user.ID)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	if isLocalURL(next) {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Login successful",
		"access_token": token,
		"user":         service.NewAuthorResponse(&user),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	utils.EndSession(w)
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Profile shows an author's posts and follow counts.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	author, err := h.getUser(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	query := h.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("author_id = ?", author.ID).
		Order(models.PostOrder)

	page, err := utils.Paginate[models.Post](query, r.URL.Query().Get("page"), h.pageSize, "Author", "Group")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	followers, err := models.CountFollowers(ctx, h.db, author.ID)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	follows, err := models.CountFollows(ctx, h.db, author.ID)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	following := false
	if viewerID, ok := utils.GetUserIDFromContext(ctx); ok && viewerID != author.ID {
		following, err = models.IsFollowing(ctx, h.db, viewerID, author.ID)
		if err != nil {
			utils.WriteError(w, r, err)
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"author":    service.NewAuthorResponse(author),
		"page":      service.PostPage(page, h.images),
		"followers": followers,
		"follows":   follows,
		"following": following,
	})
}

// ProfileFollow subscribes the viewer to the author. Following yourself does nothing.
func (h *Handler) ProfileFollow(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := utils.GetUserIDFromContext(r.Context())

	author, err := h.getUser(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	if author.ID != viewerID {
		created, err := models.FollowAuthor(r.Context(), h.db, viewerID, author.ID)
		if err != nil {
			utils.WriteError(w, r, err)
			return
		}
		if created {
			utils.Logger(r.Context()).Info("Follow added", "user_id", viewerID, "author_id", author.ID)
		}
	}

	http.Redirect(w, r, service.ProfileURL(author.Username), http.StatusFound)
}

func (h *Handler) ProfileUnfollow(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := utils.GetUserIDFromContext(r.Context())

	author, err := h.getUser(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	if err := models.UnfollowAuthor(r.Context(), h.db, viewerID, author.ID); err != nil {
		utils.WriteError(w, r, err)
		return
	}

	http.Redirect(w, r, service.ProfileURL(author.Username), http.StatusFound)
}

func (h *Handler) getUser(r *http.Request) (*models.User, error) {
	var user models.User
	err := h.db.WithContext(r.Context()).Where("username = ?", mux.Vars(r)["username"]).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewAppError(utils.ErrNotFound, "User not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// isLocalURL accepts only same-site paths, so next cannot send the client elsewhere.
func isLocalURL(next string) bool {
	return strings.HasPrefix(next, "/") &&
		!strings.HasPrefix(next, "//") &&
		!strings.HasPrefix(next, "/\\")
}
