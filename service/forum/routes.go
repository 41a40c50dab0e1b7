package forum

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/KAsare1/postly/cmd/cache"
	"github.com/KAsare1/postly/cmd/forms"
	"github.com/KAsare1/postly/cmd/models"
	"github.com/KAsare1/postly/cmd/utils"
	"github.com/KAsare1/postly/service"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type PostHandler struct {
	db       *gorm.DB
	images   *utils.ImageStore
	cache    cache.PageCache
	pageSize int
}

func NewPostHandler(db *gorm.DB, images *utils.ImageStore, pageCache cache.PageCache, pageSize int) *PostHandler {
	return &PostHandler{
		db:       db,
		images:   images,
		cache:    pageCache,
		pageSize: pageSize,
	}
}

func (h *PostHandler) RegisterRoutes(router *mux.Router) {
	// Feeds
	router.HandleFunc("/", cache.Page(h.cache, h.Index)).Methods("GET")
	router.HandleFunc("/group/{slug}/", h.GroupPosts).Methods("GET")
	router.HandleFunc("/follow/", utils.LoginRequired(h.FollowIndex)).Methods("GET")

	// Posts
	router.HandleFunc("/new/", utils.LoginRequired(h.NewPost)).Methods("GET", "POST")
	router.HandleFunc("/{username}/{post_id:[0-9]+}/", h.PostView).Methods("GET")
	router.HandleFunc("/{username}/{post_id:[0-9]+}/edit/", utils.LoginRequired(h.PostEdit)).Methods("GET", "POST")

	// Comments
	router.HandleFunc("/{username}/{post_id:[0-9]+}/comment/", utils.LoginRequired(h.AddComment)).Methods("GET", "POST")
}

// Index lists every post, newest first.
func (h *PostHandler) Index(w http.ResponseWriter, r *http.Request) {
	query := h.db.WithContext(r.Context()).
		Model(&models.Post{}).
		Order(models.PostOrder)

	page, err := utils.Paginate[models.Post](query, r.URL.Query().Get("page"), h.pageSize, "Author", "Group")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"page": service.PostPage(page, h.images),
	})
}

// GroupPosts lists the posts filed under one group.
func (h *PostHandler) GroupPosts(w http.ResponseWriter, r *http.Request) {
	var group models.Group
	if err := h.db.WithContext(r.Context()).Where("slug = ?", mux.Vars(r)["slug"]).First(&group).Error; err != nil {
		utils.WriteError(w, r, notFound(err, "Group not found"))
		return
	}

	query := h.db.WithContext(r.Context()).
		Model(&models.Post{}).
		Where("group_id = ?", group.ID).
		Order(models.PostOrder)

	page, err := utils.Paginate[models.Post](query, r.URL.Query().Get("page"), h.pageSize, "Author", "Group")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"group": service.NewGroupResponse(&group),
		"page":  service.PostPage(page, h.images),
	})
}

// FollowIndex lists posts by the authors the viewer follows.
func (h *PostHandler) FollowIndex(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	query := h.db.WithContext(r.Context()).
		Model(&models.Post{}).
		Scopes(models.FollowedPosts(userID)).
		Order(models.PostOrder)

	page, err := utils.Paginate[models.Post](query, r.URL.Query().Get("page"), h.pageSize, "Author", "Group")
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"page": service.PostPage(page, h.images),
	})
}

// NewPost shows the empty post form on GET and publishes the post on POST. The
// author is always the viewer.
func (h *PostHandler) NewPost(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	groups, err := h.groups(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"form":   forms.View{Fields: forms.PostForm{}},
			"groups": service.Groups(groups),
		})
		return
	}

	if err := forms.Parse(r); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	form, errs := forms.BindPost(r)
	checkGroup(form, groups, errs)
	image, err := h.saveImage(r, errs)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if errs.Any() {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"form":   forms.View{Fields: form, Errors: errs},
			"groups": service.Groups(groups),
		})
		return
	}

	post := models.Post{
		Text:     form.Text,
		AuthorID: userID,
		GroupID:  form.Group,
		Image:    image,
	}
	if err := h.db.WithContext(r.Context()).Create(&post).Error; err != nil {
		h.images.Delete(image)
		utils.WriteError(w, r, err)
		return
	}

	h.cache.Clear()
	utils.Logger(r.Context()).Info("Post created", "post_id", post.ID, "author_id", userID)
	http.Redirect(w, r, "/", http.StatusFound)
}

// PostView shows one post with its comments and an empty comment form.
func (h *PostHandler) PostView(w http.ResponseWriter, r *http.Request) {
	post, err := h.getPost(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	h.renderPost(w, r, post, forms.View{Fields: forms.CommentForm{}})
}

// PostEdit lets the author change text, group and image. Anyone else is sent back to
// the post.
func (h *PostHandler) PostEdit(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	post, err := h.getPost(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	postURL := service.PostURL(post.Author.Username, post.ID)
	if post.AuthorID != userID {
		http.Redirect(w, r, postURL, http.StatusFound)
		return
	}

	groups, err := h.groups(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"form":   forms.View{Fields: forms.PostForm{Text: post.Text, Group: post.GroupID}},
			"post":   service.NewPostResponse(*post, h.images),
			"groups": service.Groups(groups),
		})
		return
	}

	if err := forms.Parse(r); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	form, errs := forms.BindPost(r)
	checkGroup(form, groups, errs)
	image, err := h.saveImage(r, errs)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	if errs.Any() {
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"form":   forms.View{Fields: form, Errors: errs},
			"post":   service.NewPostResponse(*post, h.images),
			"groups": service.Groups(groups),
		})
		return
	}

	updates := map[string]interface{}{
		"text":     form.Text,
		"group_id": nil,
	}
	if form.Group != nil {
		updates["group_id"] = *form.Group
	}
	if image != "" {
		updates["image"] = image
	}
	if err := h.db.WithContext(r.Context()).Model(&models.Post{ID: post.ID}).Updates(updates).Error; err != nil {
		h.images.Delete(image)
		utils.WriteError(w, r, err)
		return
	}
	if image != "" && post.Image != "" {
		if err := h.images.Delete(post.Image); err != nil {
			utils.Logger(r.Context()).Warn("Failed to remove replaced image", "image", post.Image, "error", err)
		}
	}

	h.cache.Clear()
	http.Redirect(w, r, postURL, http.StatusFound)
}

// AddComment attaches a comment by the viewer to the post in the URL. Author and
// post fields in the body are ignored.
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, _ := utils.GetUserIDFromContext(r.Context())

	post, err := h.getPost(r)
	if err != nil {
		utils.WriteError(w, r, err)
		return
	}
	postURL := service.PostURL(post.Author.Username, post.ID)

	if r.Method == http.MethodGet {
		http.Redirect(w, r, postURL, http.StatusFound)
		return
	}

	if err := forms.Parse(r); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	form, errs := forms.BindComment(r)
	if errs.Any() {
		h.renderPost(w, r, post, forms.View{Fields: form, Errors: errs})
		return
	}

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: userID,
		Text:     form.Text,
	}
	if err := h.db.WithContext(r.Context()).Create(&comment).Error; err != nil {
		utils.WriteError(w, r, err)
		return
	}

	http.Redirect(w, r, postURL, http.StatusFound)
}

func (h *PostHandler) renderPost(w http.ResponseWriter, r *http.Request, post *models.Post, form forms.View) {
	var comments []models.Comment
	if err := h.db.WithContext(r.Context()).
		Preload("Author").
		Where("post_id = ?", post.ID).
		Order(models.CommentOrder).
		Find(&comments).Error; err != nil {
		utils.WriteError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"author":   service.NewAuthorResponse(post.Author),
		"post":     service.NewPostResponse(*post, h.images),
		"comments": lo.Map(comments, service.NewCommentResponse),
		"form":     form,
	})
}

// getPost loads the post named by the URL. The post must belong to the user in the
// URL, otherwise it does not exist at that address.
func (h *PostHandler) getPost(r *http.Request) (*models.Post, error) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["post_id"], 10, 64)
	if err != nil {
		return nil, utils.NewNotFoundError("Post not found")
	}

	var author models.User
	if err := h.db.WithContext(r.Context()).Where("username = ?", vars["username"]).First(&author).Error; err != nil {
		return nil, notFound(err, "Post not found")
	}

	var post models.Post
	if err := h.db.WithContext(r.Context()).
		Preload("Group").
		Where("id = ? AND author_id = ?", postID, author.ID).
		First(&post).Error; err != nil {
		return nil, notFound(err, "Post not found")
	}
	post.Author = &author
	return &post, nil
}

func (h *PostHandler) groups(r *http.Request) ([]models.Group, error) {
	var groups []models.Group
	err := h.db.WithContext(r.Context()).Order("title").Find(&groups).Error
	return groups, err
}

// saveImage stores the uploaded image, if any. Nothing is written when the form
// already failed validation. A file that is not an image becomes a field error.
func (h *PostHandler) saveImage(r *http.Request, errs forms.Errors) (string, error) {
	if r.MultipartForm == nil || errs.Any() {
		return "", nil
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	name, err := h.images.Save(file, header)
	if errors.Is(err, utils.ErrInvalidImage) {
		errs.Add("image", forms.MsgInvalidImage)
		return "", nil
	}
	return name, err
}

func checkGroup(form forms.PostForm, groups []models.Group, errs forms.Errors) {
	if form.Group == nil {
		return
	}
	if !lo.ContainsBy(groups, func(g models.Group) bool { return g.ID == *form.Group }) {
		errs.Add("group", forms.MsgInvalidChoice)
	}
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewAppError(utils.ErrNotFound, message, err)
	}
	return err
}
