package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/auth"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/websocket"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/usecase"
)

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *websocket.Hub,
	history *usecase.History,
	chat *usecase.ChatService,
	tokens *auth.Manager,
	logger *zap.Logger,
) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voicecore-server",
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/sessions", func(c echo.Context) error {
		return createSession(c, tokens, logger)
	})

	v1.POST("/chat", func(c echo.Context) error {
		return chatTurn(c, chat, tokens, logger)
	})

	// Conversation History APIs
	v1.GET("/conversations", func(c echo.Context) error {
		return listConversations(c, history, logger)
	})
	v1.DELETE("/conversations/:id", func(c echo.Context) error {
		return deleteConversation(c, history, logger)
	})
	v1.GET("/conversations/export", func(c echo.Context) error {
		return exportConversations(c, history, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, tokens, logger)
	})
}

// createSession mints a session ID and its bearer token.
func createSession(c echo.Context, tokens *auth.Manager, logger *zap.Logger) error {
	sessionID := uuid.NewString()
	token, expiresAt, err := tokens.GenerateSessionToken(sessionID)
	if err != nil {
		logger.Error("Failed to generate session token",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	logger.Info("Session created", zap.String("session_id", sessionID))

	return c.JSON(http.StatusOK, CreateSessionResponse{
		SessionID: sessionID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// chatTurn handles one text-mode turn for the authenticated session.
func chatTurn(c echo.Context, chat *usecase.ChatService, tokens *auth.Manager, logger *zap.Logger) error {
	claims, ok := authenticate(c, tokens, logger)
	if !ok {
		return nil
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind chat request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Message is required",
		})
	}

	reply, err := chat.Send(c.Request().Context(), claims.SessionID, req.Message)
	if err != nil {
		logger.Error("Chat turn failed",
			zap.String("session_id", claims.SessionID),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "chat_failed",
			Message: "Failed to generate a reply",
		})
	}

	return c.JSON(http.StatusOK, ChatResponse{Reply: reply})
}

func listConversations(c echo.Context, history *usecase.History, logger *zap.Logger) error {
	conversations, err := history.List(c.Request().Context())
	if err != nil {
		logger.Error("Failed to list conversations", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "history_unavailable",
			Message: "Failed to load conversation history",
		})
	}
	return c.JSON(http.StatusOK, conversations)
}

func deleteConversation(c echo.Context, history *usecase.History, logger *zap.Logger) error {
	id := c.Param("id")
	if err := history.Delete(c.Request().Context(), id); err != nil {
		logger.Error("Failed to delete conversation",
			zap.String("conversation_id", id),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "delete_failed",
			Message: "Failed to delete conversation",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func exportConversations(c echo.Context, history *usecase.History, logger *zap.Logger) error {
	export, err := history.Export(c.Request().Context())
	if err != nil {
		logger.Error("Failed to export conversations", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "export_failed",
			Message: "Failed to export conversation history",
		})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="conversations.json"`)
	return c.JSON(http.StatusOK, export)
}

// authenticate extracts and validates the bearer token. When it
// returns ok=false the JSON error response has already been written.
func authenticate(c echo.Context, tokens *auth.Manager, logger *zap.Logger) (*auth.JWTClaims, bool) {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		// Browsers cannot set headers on WebSocket upgrades, so the
		// token may ride in the query string instead.
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("Request rejected: missing token")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
		return nil, false
	}

	claims, err := tokens.ValidateToken(token)
	if err != nil {
		logger.Warn("Request rejected: invalid token", zap.Error(err))
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
		return nil, false
	}

	if claims.SessionID == "" {
		logger.Error("Request rejected: missing session ID in token")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Session ID not found in token",
		})
		return nil, false
	}
	return claims, true
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, c echo.Context, tokens *auth.Manager, logger *zap.Logger) error {
	claims, ok := authenticate(c, tokens, logger)
	if !ok {
		return nil
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("session_id", claims.SessionID))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.SessionID, logger)
}
