package geo

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/geo"
	"github.com/zhouzirui/astro-tavern/backend/pkg/utils"
)

// CitySearcher resolves free text to candidate places.
type CitySearcher interface {
	Search(ctx context.Context, query string) ([]geo.Place, error)
}

// Handler 城市搜索的HTTP处理器
type Handler struct {
	searcher CitySearcher
	logger   *zap.Logger
}

// New 创建城市搜索处理器
func New(searcher CitySearcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{searcher: searcher, logger: logger}
}

// RegisterRoutes 注册城市搜索路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/search-city", h.handleSearchCity)
}

func (h *Handler) handleSearchCity(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, `Query parameter "q" is required.`)
		return
	}

	places, err := h.searcher.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("city search failed", zap.String("query", query), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to search for cities.")
		return
	}

	if places == nil {
		places = []geo.Place{}
	}
	utils.RespondJSON(w, http.StatusOK, places)
}
