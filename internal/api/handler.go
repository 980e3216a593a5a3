package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rafikh/go-emergency-dispatch/internal/dispatch"
	"github.com/rafikh/go-emergency-dispatch/internal/events"
	"github.com/rafikh/go-emergency-dispatch/internal/models"
	"github.com/rafikh/go-emergency-dispatch/internal/repository"
)

type Handler struct {
	dispatcher  *dispatch.Dispatcher
	broadcaster *events.Broadcaster
}

func NewHandler(d *dispatch.Dispatcher, broadcaster *events.Broadcaster) *Handler {
	return &Handler{
		dispatcher:  d,
		broadcaster: broadcaster,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	r.POST("/api/incidents", h.reportIncident)
	r.GET("/api/incidents", h.listIncidents)
	r.GET("/api/incidents/:id", h.getIncident)
	r.POST("/api/incidents/:id/assign", h.assignResponder)
	r.POST("/api/incidents/:id/resolve", h.resolveIncident)
	r.GET("/api/incidents/:id/actions", h.incidentActions)

	r.GET("/api/responders", h.listResponders)
	r.POST("/api/responders", h.registerResponder)

	r.GET("/api/catalog", h.catalogDirectory)
	r.GET("/api/resources", h.resourceStatus)
	r.GET("/api/stats", h.stats)
	r.GET("/api/actions", h.recentActions)
	r.GET("/api/events", h.streamEvents)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type reportRequest struct {
	Type        string            `json:"type"`
	Location    string            `json:"location"`
	Description string            `json:"description"`
	ReporterID  int64             `json:"reporter_id"`
	Facts       map[string]string `json:"facts"`
}

func (h *Handler) reportIncident(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	inc, err := h.dispatcher.ReportIncident(c.Request.Context(), dispatch.NewIncident{
		Type:        req.Type,
		Location:    req.Location,
		Description: req.Description,
		ReporterID:  req.ReporterID,
		Facts:       models.Facts(req.Facts),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

func (h *Handler) listIncidents(c *gin.Context) {
	filter := repository.IncidentFilter{
		Limit: 50, // Default page size if limit param not supplied
	}

	if s := c.Query("status"); s != "" {
		status := models.Status(s)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		filter.Status = &status
	}
	if cat := c.Query("category"); cat != "" {
		category := models.Category(cat)
		filter.Category = &category
	}
	if p := c.Query("priority"); p != "" {
		priority := models.ParsePriority(p)
		if !priority.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority"})
			return
		}
		filter.Priority = &priority
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	incidents, err := h.dispatcher.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
}

func (h *Handler) getIncident(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	inc, facts, err := h.dispatcher.GetIncident(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident": inc, "facts": facts})
}

type assignRequest struct {
	ResponderID int64 `json:"responder_id"`
}

// assignResponder assigns the named responder, or the first eligible
// one when the body carries no responder_id.
func (h *Handler) assignResponder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.ResponderID == 0 {
		responder, err := h.dispatcher.AssignBest(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"incident_id": id, "responder": responder})
		return
	}

	if err := h.dispatcher.AssignResponder(c.Request.Context(), id, req.ResponderID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident_id": id, "responder_id": req.ResponderID})
}

func (h *Handler) resolveIncident(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.dispatcher.ResolveIncident(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident_id": id, "status": models.StatusSolved})
}

func (h *Handler) incidentActions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	entries, err := h.dispatcher.ActionsFor(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incident_id": id, "actions": entries})
}

func (h *Handler) listResponders(c *gin.Context) {
	var category *models.Category
	if cat := c.Query("category"); cat != "" {
		v := models.Category(cat)
		category = &v
	}

	responders, err := h.dispatcher.Responders(c.Request.Context(), category)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responders": responders, "count": len(responders)})
}

type registerResponderRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

func (h *Handler) registerResponder(c *gin.Context) {
	var req registerResponderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	responder, err := h.dispatcher.RegisterResponder(c.Request.Context(), req.Name, models.Category(req.Category))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, responder)
}

type catalogEntry struct {
	Types       []string       `json:"types"`
	Roles       []string       `json:"roles,omitempty"`
	Deployments map[string]int `json:"deployments,omitempty"`
}

// catalogDirectory returns the reference catalog: the incident types,
// responder roles and auto-deployment rule of every category.
func (h *Handler) catalogDirectory(c *gin.Context) {
	cat := h.dispatcher.Catalog()

	directory := make(map[models.Category]catalogEntry)
	for _, category := range cat.Categories() {
		entry := catalogEntry{
			Types: cat.Types(category),
			Roles: cat.RecommendedRoles(category),
		}
		if rule := cat.DeploymentRule(category); len(rule) > 0 {
			entry.Deployments = rule
		}
		directory[category] = entry
	}
	c.JSON(http.StatusOK, gin.H{
		"categories": directory,
		"inventory":  cat.Inventory(),
	})
}

func (h *Handler) resourceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.ResourceStatus())
}

func (h *Handler) stats(c *gin.Context) {
	byCategory, err := h.dispatcher.StatsByCategory(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	byStatus, err := h.dispatcher.StatsByStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"by_category": byCategory,
		"by_status":   byStatus,
	})
}

func (h *Handler) recentActions(c *gin.Context) {
	limit := 20
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 200 {
			limit = lim
		}
	}

	entries, err := h.dispatcher.RecentActions(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": entries})
}

// streamEvents pushes dispatch events to the client over SSE until it
// disconnects.
func (h *Handler) streamEvents(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
		return
	}

	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		case <-time.After(30 * time.Second):
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case dispatch.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrIncidentNotFound),
		errors.Is(err, repository.ErrResponderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrNoEligibleResponder):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
