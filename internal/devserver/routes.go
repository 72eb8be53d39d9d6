package devserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pulih-app/coach/internal/auth"
	"github.com/pulih-app/coach/internal/websocket"
)

const userIDKey = "userID"

// TokenRequest is the payload of the token endpoint
type TokenRequest struct {
	UserID string `json:"user_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Register mounts the development server routes
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.health)

	v1 := e.Group("/api/v1")
	v1.POST("/auth/token", s.issueToken)

	authed := v1.Group("", s.requireUser)
	authed.GET("/exercises", s.listExercises)
	authed.GET("/exercises/:id", s.getExercise)
	authed.GET("/progress/summary", s.progressSummary)
	authed.GET("/achievements", s.listAchievements)

	e.GET("/ws", s.serveSession, s.requireUser)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"service":  "pulih-devserver",
		"sessions": s.hub.Count(),
	})
}

// issueToken hands out user tokens without credentials. Development only.
func (s *Server) issueToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.UserID == "" {
		req.UserID = uuid.New().String()
	}

	token, expiresAt, err := s.deps.Issuer.GenerateUserToken(req.UserID)
	if err != nil {
		s.logger.Error("Failed to generate user token", zap.String("userID", req.UserID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	s.logger.Info("Issued user token", zap.String("userID", req.UserID))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
		"user_id":    req.UserID,
	})
}

// requireUser validates the bearer token and stores the user id on the context.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := auth.BearerToken(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := s.deps.Issuer.ValidateToken(token)
		if err != nil {
			s.logger.Warn("Rejected request with invalid token",
				zap.String("path", c.Path()),
				zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}
		if claims.Role != auth.RoleUser || claims.UserID == "" {
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "invalid_role",
				Message: "Only user tokens are accepted",
			})
		}

		c.Set(userIDKey, claims.UserID)
		return next(c)
	}
}

func (s *Server) listExercises(c echo.Context) error {
	ids := ExerciseIDs()
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, Exercises[id])
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"exercises": out})
}

func (s *Server) getExercise(c echo.Context) error {
	exercise, ok := Exercises[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Exercise not found",
		})
	}
	return c.JSON(http.StatusOK, exercise)
}

func (s *Server) progressSummary(c echo.Context) error {
	records, err := s.deps.Summaries.ListByUser(c.Request().Context(), c.Get(userIDKey).(string))
	if err != nil {
		s.logger.Error("Failed to load progress", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusOK, summarize(records))
}

func (s *Server) listAchievements(c echo.Context) error {
	records, err := s.deps.Summaries.ListByUser(c.Request().Context(), c.Get(userIDKey).(string))
	if err != nil {
		s.logger.Error("Failed to load achievements", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"achievements": achievements(records)})
}

func (s *Server) serveSession(c echo.Context) error {
	userID := c.Get(userIDKey).(string)

	// Upgrade has already answered the request on failure.
	conn, err := websocket.Upgrade(c.Response(), c.Request(), s.logger)
	if err != nil {
		return nil
	}

	go newSession(s, conn, userID).run()
	return nil
}
