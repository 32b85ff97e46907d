package testutil

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/pkg/auth"
)

// Routes is anything that mounts itself on the API group.
type Routes interface {
	RegisterRoutes(*gin.RouterGroup)
}

// API is a gin engine in test mode with the handlers under /api/v1.
type API struct {
	Engine *gin.Engine
	JWT    auth.JWTService
	Auth   *middleware.AuthMiddleware
}

func NewAPI(t *testing.T) *API {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	jwt := auth.NewJWTService("test-secret", "igabaycare-test", time.Hour)
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.ErrorHandler())
	return &API{Engine: engine, JWT: jwt, Auth: middleware.NewAuthMiddleware(jwt)}
}

func (a *API) Mount(routes ...Routes) {
	group := a.Engine.Group("/api/v1")
	for _, r := range routes {
		r.RegisterRoutes(group)
	}
}

// Token mints a bearer token for actor.
func (a *API) Token(t *testing.T, actor model.Actor) string {
	t.Helper()
	token, _, err := a.JWT.GenerateAccessToken(actor.UserID, actor.Email, string(actor.Role))
	require.NoError(t, err)
	return token
}

// Do sends a JSON request. A nil body sends none; an empty token sends no
// Authorization header.
func (a *API) Do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.Engine.ServeHTTP(rec, req)
	return rec
}

// Envelope is the response wrapper with data left raw.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Fields  []struct {
			Field string `json:"field"`
			Rule  string `json:"rule"`
		} `json:"fields"`
	} `json:"error"`
}

// Decode unwraps the envelope and, when out is non-nil, its data.
func Decode(t *testing.T, rec *httptest.ResponseRecorder, status int, out interface{}) Envelope {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

// Page is the data of a paginated response.
type Page struct {
	Data       json.RawMessage `json:"data"`
	Pagination struct {
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
		Total    int `json:"total"`
	} `json:"pagination"`
}

