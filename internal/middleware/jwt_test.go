package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clipstash/backend/internal/auth"
)

func jwtRouter(svc *auth.JWTService) (*gin.Engine, *uuid.UUID) {
	gin.SetMode(gin.TestMode)
	var seen uuid.UUID
	router := gin.New()
	router.GET("/whoami", JWT(svc), func(c *gin.Context) {
		seen = c.MustGet(ContextUserID).(uuid.UUID)
		c.Status(http.StatusOK)
	})
	return router, &seen
}

func TestJWT_ValidToken(t *testing.T) {
	svc := auth.NewJWTService("test-secret", 1)
	userID := uuid.New()
	token, err := svc.Generate(userID, "owner@example.com")
	require.NoError(t, err)

	router, seen := jwtRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, userID, *seen)
}

func TestJWT_Rejections(t *testing.T) {
	svc := auth.NewJWTService("test-secret", 1)
	other := auth.NewJWTService("other-secret", 1)
	foreign, err := other.Generate(uuid.New(), "owner@example.com")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"wrong signing secret", "Bearer " + foreign},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := jwtRouter(svc)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
