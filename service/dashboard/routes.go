package dashboard

import (
	"net/http"

	"github.com/KAsare1/postly/cmd/models"
	"github.com/KAsare1/postly/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

type DashboardStats struct {
	TotalUsers    int64 `json:"total_users"`
	TotalGroups   int64 `json:"total_groups"`
	TotalPosts    int64 `json:"total_posts"`
	TotalComments int64 `json:"total_comments"`
	TotalFollows  int64 `json:"total_follows"`
}

// RegisterRoutes registers dashboard-related routes with Gorilla Mux
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/dashboard/stats/", utils.LoginRequired(h.GetDashboardStats)).Methods("GET")
}

func (h *DashboardHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	var stats DashboardStats

	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&models.User{}, &stats.TotalUsers},
		{&models.Group{}, &stats.TotalGroups},
		{&models.Post{}, &stats.TotalPosts},
		{&models.Comment{}, &stats.TotalComments},
		{&models.Follow{}, &stats.TotalFollows},
	}
	for _, c := range counts {
		if err := h.db.WithContext(r.Context()).Model(c.model).Count(c.dest).Error; err != nil {
			utils.WriteError(w, r, err)
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, stats)
}
