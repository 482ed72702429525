package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/yahabaat/voiceroom/internal/core"
	"github.com/yahabaat/voiceroom/internal/domain"
	"github.com/yahabaat/voiceroom/internal/presence"
	"github.com/yahabaat/voiceroom/internal/token"
)

const usernameSessionKey = "username"

type Handlers struct {
	Issuer    *token.Issuer
	Directory *presence.Directory
}

// HandleToken is GET /token?room=<room>&identity=<identity>.
func (h *Handlers) HandleToken(c *gin.Context) {
	room := c.Query("room")
	identity := c.Query("identity")

	jwt, err := h.Issuer.Issue(domain.RoomName(room), domain.Identity(identity))
	if err != nil {
		switch {
		case errors.Is(err, core.ErrBadRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, core.ErrMisconfigured):
			log.Error().Str("module", "adapters.http").Msg("token endpoint misconfigured")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": core.ErrSigningFailure.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": jwt})
}

func (h *Handlers) HandleListRooms(c *gin.Context) {
	rooms, err := h.Directory.ListRooms(c.Request.Context())
	if err != nil {
		log.Error().Str("module", "adapters.http").Err(err).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

type createRoomRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) HandleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid room name"})
		return
	}
	createdBy := currentUsername(c)
	room, err := h.Directory.CreateRoom(c.Request.Context(), domain.RoomName(req.Name), createdBy)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNameEmpty) || errors.Is(err, domain.ErrRoomNameTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Str("module", "adapters.http").Err(err).Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

type setSessionRequest struct {
	Username string `json:"username"`
}

// HandleSetSession stores the chosen display name in the cookie session so
// the lobby can suggest it on the next visit.
func (h *Handlers) HandleSetSession(c *gin.Context) {
	var req setSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := domain.ValidateIdentity(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := sessions.Default(c)
	s.Set(usernameSessionKey, req.Username)
	if err := s.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

func (h *Handlers) HandleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": currentUsername(c)})
}

func currentUsername(c *gin.Context) string {
	s := sessions.Default(c)
	if v, ok := s.Get(usernameSessionKey).(string); ok {
		return v
	}
	return ""
}
