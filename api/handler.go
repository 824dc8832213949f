// Package api serves the published catalog over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"costa-catalog/catalog"
	"costa-catalog/services"
	"costa-catalog/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	relatedLimit    = 6
)

// Handler exposes read accessors of a catalog.Store plus the refresh and
// invalidate lifecycle operations.
type Handler struct {
	store  *catalog.Store
	logger *utils.Logger
}

// NewHandler creates a Handler over store.
func NewHandler(store *catalog.Store, logger *utils.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// NewRouter builds the gin engine with CORS and every route registered.
func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", h.Health)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/developments", h.Developments)
		apiV1.GET("/developments/:slug", h.Development)
		apiV1.GET("/builders", h.Builders)
		apiV1.GET("/builders/:slug", h.Builder)
		apiV1.GET("/stats", h.Stats)
		apiV1.GET("/land-plots", h.LandPlots)
		apiV1.GET("/properties", h.Properties)
		apiV1.GET("/listings", h.Listings)
		apiV1.GET("/filters", h.Filters)
		apiV1.GET("/filters/:slug", h.Filter)
		apiV1.GET("/beach-zones", h.BeachZones)

		apiV1.POST("/catalog/refresh", h.Refresh)
		apiV1.POST("/catalog/invalidate", h.Invalidate)
	}
	return router
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	cat, err := h.store.Current()
	body := gin.H{"status": "healthy", "loaded": err == nil, "stale": h.store.Stale()}
	if err == nil {
		body["generatedAt"] = cat.GeneratedAt()
	}
	c.JSON(http.StatusOK, body)
}

// Developments handles GET /api/v1/developments
func (h *Handler) Developments(c *gin.Context) {
	devs, err := h.store.AllDevelopments()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	h.respond(c, gin.H{"count": len(devs), "developments": devs})
}

// Development handles GET /api/v1/developments/:slug
func (h *Handler) Development(c *gin.Context) {
	cat, err := h.store.Current()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	dev, ok := cat.Development(c.Param("slug"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "development not found"})
		return
	}
	h.respond(c, gin.H{"development": dev})
}

// Builders handles GET /api/v1/builders
func (h *Handler) Builders(c *gin.Context) {
	builders, err := h.store.AllBuilders()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	h.respond(c, gin.H{"count": len(builders), "builders": builders})
}

// Builder handles GET /api/v1/builders/:slug
func (h *Handler) Builder(c *gin.Context) {
	cat, err := h.store.Current()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	b, ok := cat.Builder(c.Param("slug"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "builder not found"})
		return
	}
	h.respond(c, gin.H{"builder": b})
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(c *gin.Context) {
	cat, err := h.store.Current()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	h.respond(c, gin.H{"stats": cat.DevelopmentStats(), "report": cat.Report()})
}

// LandPlots handles GET /api/v1/land-plots?minPrice=
func (h *Handler) LandPlots(c *gin.Context) {
	minPrice, ok := queryInt(c, "minPrice", 0)
	if !ok {
		return
	}
	plots, err := h.store.LandPlots(minPrice)
	if err != nil {
		h.unavailable(c, err)
		return
	}
	h.respond(c, gin.H{"count": len(plots), "minPrice": minPrice, "properties": plots})
}

// Properties handles GET /api/v1/properties?limit=&offset=
func (h *Handler) Properties(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultPageSize)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	cat, err := h.store.Current()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	all := cat.Properties()
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	h.respond(c, gin.H{"total": total, "limit": limit, "offset": offset, "properties": all[offset:end]})
}

// Listings handles GET /api/v1/listings: the units that belong to no
// development, as published in the XML pass-through feed.
func (h *Handler) Listings(c *gin.Context) {
	units, err := h.store.XMLFeed()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	h.respond(c, gin.H{"count": len(units), "properties": units})
}

type filterSummary struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// Filters handles GET /api/v1/filters
func (h *Handler) Filters(c *gin.Context) {
	cat, err := h.store.Current()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	idx := cat.Filters()
	slugs := idx.StaticParams()
	out := make([]filterSummary, 0, len(slugs))
	for _, slug := range slugs {
		def, _ := idx.Definition(slug)
		out = append(out, filterSummary{Slug: slug, Title: def.Title, Description: def.Description, Count: idx.Count(slug)})
	}
	h.respond(c, gin.H{"filters": out})
}

// Filter handles GET /api/v1/filters/:slug
func (h *Handler) Filter(c *gin.Context) {
	cat, err := h.store.Current()
	if err != nil {
		h.unavailable(c, err)
		return
	}
	idx := cat.Filters()
	slug := c.Param("slug")
	def, ok := idx.Definition(slug)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "filter not found"})
		return
	}
	h.respond(c, gin.H{
		"filter":       def,
		"count":        idx.Count(slug),
		"properties":   idx.Properties(slug),
		"developments": idx.Developments(slug),
		"related":      idx.RelatedFilters(slug, relatedLimit),
	})
}

type beachZoneView struct {
	Beach    string   `json:"beach"`
	Aliases  []string `json:"aliases"`
	Distance string   `json:"distance"`
}

// BeachZones handles GET /api/v1/beach-zones. It does not need a catalog.
func (h *Handler) BeachZones(c *gin.Context) {
	zones := services.BeachZones()
	out := make([]beachZoneView, len(zones))
	for i, z := range zones {
		out[i] = beachZoneView{Beach: z.Beach, Aliases: z.Aliases, Distance: string(z.Distance)}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "zones": out})
}

// Refresh handles POST /api/v1/catalog/refresh
func (h *Handler) Refresh(c *gin.Context) {
	cat, err := h.store.Refresh(c.Request.Context())
	switch {
	case err != nil && cat == nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Refresh failed: " + err.Error()})
	case err != nil:
		h.respond(c, gin.H{"refreshed": false, "error": err.Error(), "generatedAt": cat.GeneratedAt()})
	default:
		h.respond(c, gin.H{"refreshed": true, "generatedAt": cat.GeneratedAt(), "report": cat.Report()})
	}
}

// Invalidate handles POST /api/v1/catalog/invalidate
func (h *Handler) Invalidate(c *gin.Context) {
	h.store.Invalidate()
	h.logger.Info("[api] Catalog invalidated by %s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"invalidated": true})
}

// respond writes body with the store's stale flag attached.
func (h *Handler) respond(c *gin.Context, body gin.H) {
	body["stale"] = h.store.Stale()
	c.JSON(http.StatusOK, body)
}

func (h *Handler) unavailable(c *gin.Context, err error) {
	if errors.Is(err, catalog.ErrNotLoaded) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog not loaded yet"})
		return
	}
	h.logger.Error("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key + ": " + raw})
		return 0, false
	}
	return n, true
}
