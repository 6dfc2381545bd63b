package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	"github.com/Abhishekhack2909/StreamVerse/internal/record"
	"github.com/Abhishekhack2909/StreamVerse/internal/registry"
	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
	"github.com/Abhishekhack2909/StreamVerse/pkg/response"
)

// HTTPHandler serves the read side of the live service: session records,
// live participant lists and client ICE configuration.
type HTTPHandler struct {
	registry       *registry.Registry
	records        record.Store
	stunServers    []string
	authMiddleware *AuthMiddleware
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(reg *registry.Registry, records record.Store, stunServers []string, auth *AuthMiddleware) *HTTPHandler {
	return &HTTPHandler{
		registry:       reg,
		records:        records,
		stunServers:    stunServers,
		authMiddleware: auth,
	}
}

// RegisterRoutes registers all routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		{
			sessions.GET("", h.ListSessions)
			sessions.GET("/:id", h.GetSession)
			sessions.GET("/:id/participants", h.GetParticipants)
			sessions.POST("", h.authMiddleware.RequireAuth(), h.CreateSession)
		}

		api.GET("/ice-servers", h.authMiddleware.RequireAuth(), h.GetICEServers)
	}
}

// CreateSessionRequest pre-creates a session record before the owner opens
// the signaling channel.
type CreateSessionRequest struct {
	Title string `json:"title" binding:"required,max=200"`
	Mode  string `json:"mode" binding:"required"`
}

// CreateSession persists a new session record owned by the caller.
func (h *HTTPHandler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := pkglog.Ctx(ctx)

	userID := GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create session request")
		response.BadRequest(c, err.Error())
		return
	}
	if !domain.Mode(req.Mode).Valid() {
		response.BadRequest(c, "unknown session mode")
		return
	}

	id, err := h.records.CreateRecord(ctx, userID, req.Title, req.Mode)
	if err != nil {
		l.Error().Err(err).Msg("failed to create session record")
		response.InternalError(c, "failed to create session")
		return
	}

	rec, err := h.records.GetRecord(ctx, id)
	if err != nil {
		l.Error().Err(err).Msg("failed to load created session record")
		response.InternalError(c, "failed to create session")
		return
	}

	response.Created(c, rec)
}

// ListSessions returns currently live session records, newest first.
func (h *HTTPHandler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.records.ListLive(ctx, limit)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list live sessions")
		response.InternalError(c, "failed to list sessions")
		return
	}

	response.Success(c, gin.H{"sessions": records, "count": len(records)})
}

// GetSession returns the persisted record for a session.
func (h *HTTPHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	rec, err := h.records.GetRecord(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, record.ErrRecordNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Msg("failed to load session record")
		response.InternalError(c, "failed to load session")
		return
	}

	response.Success(c, rec)
}

// GetParticipants returns the live participant list straight from the
// registry. Ended and unknown sessions both report why.
func (h *HTTPHandler) GetParticipants(c *gin.Context) {
	sessionID := c.Param("id")

	info, err := h.registry.Get(sessionID)
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}
	if info.Ended() {
		response.Error(c, 410, domain.ErrCodeSessionEnded, "session has ended")
		return
	}

	participants, err := h.registry.Snapshot(sessionID)
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}

	response.Success(c, gin.H{
		"session_id":   sessionID,
		"mode":         string(info.Mode),
		"participants": domain.ParticipantInfos(participants),
	})
}

type iceServer struct {
	URLs []string `json:"urls"`
}

// GetICEServers hands clients the STUN configuration to build their peer
// connections with.
func (h *HTTPHandler) GetICEServers(c *gin.Context) {
	servers := make([]iceServer, 0, len(h.stunServers))
	for _, url := range h.stunServers {
		servers = append(servers, iceServer{URLs: []string{url}})
	}
	response.Success(c, gin.H{"ice_servers": servers})
}
