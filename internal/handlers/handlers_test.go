package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/daybook/internal/auth"
	"github.com/zfogg/daybook/internal/cache"
	"github.com/zfogg/daybook/internal/dashboard"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/export"
	"github.com/zfogg/daybook/internal/middleware"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/search"
	"github.com/zfogg/daybook/internal/testutil"
	"github.com/zfogg/daybook/internal/util"
	"github.com/zfogg/daybook/internal/validation"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type envelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Meta    json.RawMessage    `json:"meta"`
	Error   *util.ErrorResponse `json:"error"`
}

type APITestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
	auth   *auth.Service
	token  string
	userID string
}

func (suite *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	validation.RegisterCustomValidators()
}

func (suite *APITestSuite) SetupTest() {
	suite.db = testutil.NewDB(suite.T())
	suite.auth = auth.NewService(suite.db, auth.Options{
		JWTSecret:  []byte("handler-test-secret"),
		BcryptCost: bcrypt.MinCost,
	})

	bus := events.NewBus()
	store := cache.NewMemory()
	dash := dashboard.NewService(suite.db, store)
	bus.Subscribe(dash)
	rc := middleware.NewResponseCache(store, "api")
	bus.Subscribe(rc)

	svc := NewServices(suite.db, bus, dash, search.NewService(suite.db, nil), export.NewService(suite.db, nil))

	suite.router = gin.New()
	RegisterRoutes(suite.router.Group("/api/v1"), NewHandlers(suite.db, svc), NewAuthHandlers(suite.auth, false), RouteOptions{
		Validator:     suite.auth,
		ResponseCache: rc,
	})

	suite.token, suite.userID = suite.register("alice")
}

func (suite *APITestSuite) request(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (suite *APITestSuite) register(username string) (string, string) {
	w, env := suite.request(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":        username + "@example.com",
		"username":     username,
		"password":     "password123",
		"display_name": username,
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var result auth.AuthResult
	suite.Require().NoError(json.Unmarshal(env.Data, &result))
	return result.Tokens.AccessToken, result.User.ID
}

func (suite *APITestSuite) decode(env envelope, dst interface{}) {
	suite.Require().NoError(json.Unmarshal(env.Data, dst))
}

func (suite *APITestSuite) TestAuthFlow() {
	w, env := suite.request(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":        "ALICE@example.com",
		"username":     "alice2",
		"password":     "password123",
		"display_name": "Alice",
	})
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("ALREADY_EXISTS", env.Error.Code)

	w, env = suite.request(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.False(env.Success)

	w, env = suite.request(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	})
	suite.Require().Equal(http.StatusOK, w.Code)
	var login auth.AuthResult
	suite.decode(env, &login)
	suite.NotEmpty(login.Tokens.RefreshToken)

	w, env = suite.request(http.MethodGet, "/api/v1/auth/me", login.Tokens.AccessToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var me map[string]interface{}
	suite.decode(env, &me)
	suite.Equal("alice", me["username"])
	suite.NotContains(me, "password_hash")

	w, env = suite.request(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": login.Tokens.RefreshToken})
	suite.Require().Equal(http.StatusOK, w.Code)
	var refreshed auth.AuthResult
	suite.decode(env, &refreshed)
	suite.NotEqual(login.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	// the rotated token cannot be used twice
	w, _ = suite.request(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": login.Tokens.RefreshToken})
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *APITestSuite) TestUpdateMeValidatesTimezone() {
	w, env := suite.request(http.MethodPatch, "/api/v1/auth/me", suite.token, map[string]string{"timezone": "Mars/Olympus"})
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("timezone", env.Error.Field)

	w, env = suite.request(http.MethodPatch, "/api/v1/auth/me", suite.token, map[string]string{"timezone": "Europe/Berlin"})
	suite.Require().Equal(http.StatusOK, w.Code)
	var me map[string]interface{}
	suite.decode(env, &me)
	suite.Equal("Europe/Berlin", me["timezone"])
}

func (suite *APITestSuite) TestPasswordResetNeverRevealsAccounts() {
	for _, email := range []string{"alice@example.com", "nobody@example.com"} {
		w, env := suite.request(http.MethodPost, "/api/v1/auth/password-reset", "", map[string]string{"email": email})
		suite.Equal(http.StatusAccepted, w.Code)
		suite.True(env.Success)
	}
}

func (suite *APITestSuite) TestGoogleCallbackRejectsMissingState() {
	w, env := suite.request(http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=xyz", "", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal("UNAUTHORIZED", env.Error.Code)

	// without a Google client configured the login redirect is unavailable
	w, _ = suite.request(http.MethodGet, "/api/v1/auth/google", "", nil)
	suite.Equal(http.StatusServiceUnavailable, w.Code)
}

func (suite *APITestSuite) TestRequiresAuth() {
	for _, path := range []string{"/api/v1/progress-items", "/api/v1/dashboard", "/api/v1/auth/me", "/api/v1/sync/changes"} {
		w, env := suite.request(http.MethodGet, path, "", nil)
		suite.Equal(http.StatusUnauthorized, w.Code, path)
		suite.Equal("UNAUTHORIZED", env.Error.Code, path)
	}
}

func (suite *APITestSuite) TestProgressItems() {
	w, env := suite.request(http.MethodPost, "/api/v1/progress-items", suite.token, map[string]interface{}{
		"title":     "Write report",
		"important": true,
		"urgent":    true,
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var item models.ProgressItem
	suite.decode(env, &item)
	suite.Equal(models.StatusTodo, item.Status)

	_, env = suite.request(http.MethodPost, "/api/v1/progress-items", suite.token, map[string]interface{}{"title": "Later", "important": true})

	w, env = suite.request(http.MethodGet, "/api/v1/progress-items?quadrant=do", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var items []models.ProgressItem
	suite.decode(env, &items)
	suite.Len(items, 1)
	var meta util.PageMeta
	suite.Require().NoError(json.Unmarshal(env.Meta, &meta))
	suite.EqualValues(1, meta.Total)

	w, env = suite.request(http.MethodGet, "/api/v1/progress-items?important=maybe", suite.token, nil)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("important", env.Error.Field)

	w, env = suite.request(http.MethodPost, "/api/v1/progress-items/"+item.ID+"/complete", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var done models.ProgressItem
	suite.decode(env, &done)
	suite.Equal(100, done.Progress)
	suite.NotNil(done.CompletedAt)

	w, env = suite.request(http.MethodGet, "/api/v1/progress-items/matrix", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var matrix map[string][]models.ProgressItem
	suite.decode(env, &matrix)
	suite.Len(matrix, 4)
	suite.Empty(matrix["do"])
	suite.Len(matrix["schedule"], 1)

	// another user's item looks missing
	bobToken, _ := suite.register("bob")
	w, env = suite.request(http.MethodGet, "/api/v1/progress-items/"+item.ID, bobToken, nil)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.Equal("NOT_FOUND", env.Error.Code)

	w, _ = suite.request(http.MethodDelete, "/api/v1/progress-items/"+item.ID, suite.token, nil)
	suite.Equal(http.StatusOK, w.Code)
	w, _ = suite.request(http.MethodGet, "/api/v1/progress-items/"+item.ID, suite.token, nil)
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *APITestSuite) TestProgressItemValidation() {
	w, env := suite.request(http.MethodPost, "/api/v1/progress-items", suite.token, map[string]interface{}{"title": ""})
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("title", env.Error.Field)

	w, env = suite.request(http.MethodPost, "/api/v1/progress-items", suite.token, map[string]interface{}{"title": "x", "due_date": "tomorrow"})
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("due_date", env.Error.Field)

	w, _ = suite.request(http.MethodGet, "/api/v1/progress-items/history?granularity=year", suite.token, nil)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (suite *APITestSuite) TestCommitmentsAndCachedStreak() {
	w, env := suite.request(http.MethodPost, "/api/v1/commitments", suite.token, map[string]interface{}{
		"title":    "Read",
		"schedule": []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"},
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var commitment models.Commitment
	suite.decode(env, &commitment)
	base := "/api/v1/commitments/" + commitment.ID

	w, env = suite.request(http.MethodGet, base+"/streak", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Equal("MISS", w.Header().Get("X-Cache"))
	w, _ = suite.request(http.MethodGet, base+"/streak", suite.token, nil)
	suite.Equal("HIT", w.Header().Get("X-Cache"))

	today := util.TodayIn("UTC", time.Now())
	w, _ = suite.request(http.MethodPost, base+"/logs", suite.token, map[string]string{"date": today, "note": "20 pages"})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	w, _ = suite.request(http.MethodPost, base+"/logs", suite.token, map[string]string{"date": today})
	suite.Equal(http.StatusConflict, w.Code)

	// the check-in retired the cached streak
	w, env = suite.request(http.MethodGet, base+"/streak", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Equal("MISS", w.Header().Get("X-Cache"))
	var streak struct {
		Current     int  `json:"current"`
		LoggedToday bool `json:"logged_today"`
	}
	suite.decode(env, &streak)
	suite.Equal(1, streak.Current)
	suite.True(streak.LoggedToday)

	w, env = suite.request(http.MethodGet, base+"/history?granularity=week", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var meta map[string]string
	suite.Require().NoError(json.Unmarshal(env.Meta, &meta))
	suite.Equal(today, meta["to"])

	w, _ = suite.request(http.MethodDelete, base+"/logs/not-a-date", suite.token, nil)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	w, _ = suite.request(http.MethodDelete, base+"/logs/"+today, suite.token, nil)
	suite.Equal(http.StatusOK, w.Code)

	w, env = suite.request(http.MethodGet, base+"/logs", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var logs []models.CommitmentLog
	suite.decode(env, &logs)
	suite.Empty(logs)

	w, _ = suite.request(http.MethodGet, "/api/v1/commitments?archived=true", suite.token, nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *APITestSuite) TestTimelineAndDashboard() {
	today := util.TodayIn("UTC", time.Now())
	start, _, err := util.LocalDayBounds(today, time.UTC)
	suite.Require().NoError(err)

	w, env := suite.request(http.MethodPost, "/api/v1/timeline", suite.token, map[string]interface{}{
		"title":     "Standup",
		"starts_at": start.Add(9 * time.Hour).Format(time.RFC3339),
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var e models.TimelineEvent
	suite.decode(env, &e)

	w, env = suite.request(http.MethodGet, "/api/v1/timeline", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var evs []models.TimelineEvent
	suite.decode(env, &evs)
	suite.Len(evs, 1)

	w, env = suite.request(http.MethodGet, "/api/v1/timeline?from="+today+"&to=2000-01-01", suite.token, nil)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("to", env.Error.Field)

	w, _ = suite.request(http.MethodGet, "/api/v1/timeline?from=yesterday&to="+today, suite.token, nil)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)

	w, env = suite.request(http.MethodGet, "/api/v1/dashboard", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var d dashboard.Dashboard
	suite.decode(env, &d)
	suite.Equal(today, d.Date)
	suite.Equal(1, d.Summary.Events)

	w, env = suite.request(http.MethodGet, "/api/v1/dashboard?date=13/01/2026", suite.token, nil)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("date", env.Error.Field)
}

func (suite *APITestSuite) TestSyncAndChanges() {
	id := uuid.New().String()
	opID := uuid.New().String()
	body := map[string]interface{}{
		"operations": []map[string]interface{}{{
			"op_id":     opID,
			"entity":    models.EntityProgressItem,
			"action":    models.ActionCreate,
			"entity_id": id,
			"payload":   map[string]interface{}{"title": "Queued offline"},
		}},
	}

	w, env := suite.request(http.MethodPost, "/api/v1/sync", suite.token, body)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Results []struct {
			Status   string `json:"status"`
			EntityID string `json:"entity_id"`
		} `json:"results"`
	}
	suite.decode(env, &resp)
	suite.Require().Len(resp.Results, 1)
	suite.Equal(models.SyncApplied, resp.Results[0].Status)
	suite.Equal(id, resp.Results[0].EntityID)

	w, env = suite.request(http.MethodPost, "/api/v1/sync", suite.token, body)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.decode(env, &resp)
	suite.Equal(models.SyncDuplicate, resp.Results[0].Status)

	w, _ = suite.request(http.MethodPost, "/api/v1/sync", suite.token, map[string]interface{}{"operations": []interface{}{}})
	suite.Equal(http.StatusUnprocessableEntity, w.Code)

	// op ids are client-minted uuids
	w, env = suite.request(http.MethodPost, "/api/v1/sync", suite.token, map[string]interface{}{
		"operations": []map[string]interface{}{{
			"op_id":  "retry-1",
			"entity": models.EntityProgressItem,
			"action": models.ActionCreate,
		}},
	})
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.False(env.Success)

	w, env = suite.request(http.MethodGet, "/api/v1/sync/changes", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var changes struct {
		Changes    []map[string]interface{} `json:"changes"`
		ServerTime time.Time                `json:"server_time"`
	}
	suite.decode(env, &changes)
	suite.Len(changes.Changes, 1)
	suite.False(changes.ServerTime.IsZero())

	w, _ = suite.request(http.MethodGet, "/api/v1/sync/changes?since="+changes.ServerTime.Format(time.RFC3339Nano), suite.token, nil)
	suite.Equal(http.StatusOK, w.Code)

	w, env = suite.request(http.MethodGet, "/api/v1/sync/changes?since=yesterday", suite.token, nil)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("since", env.Error.Field)
}

func (suite *APITestSuite) TestSearchAndExport() {
	_, _ = suite.request(http.MethodPost, "/api/v1/progress-items", suite.token, map[string]interface{}{"title": "Plan the trip"})

	w, env := suite.request(http.MethodGet, "/api/v1/search?q=trip", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var results []search.Result
	suite.decode(env, &results)
	suite.Require().Len(results, 1)
	suite.Equal("Plan the trip", results[0].Title)

	w, env = suite.request(http.MethodGet, "/api/v1/search?q=", suite.token, nil)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Equal("q", env.Error.Field)

	w, env = suite.request(http.MethodPost, "/api/v1/export", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var res export.Result
	suite.decode(env, &res)
	suite.Equal("inline", res.Destination)
	suite.Require().NotNil(res.Snapshot)
	suite.Len(res.Snapshot.ProgressItems, 1)
}

func (suite *APITestSuite) TestAdminStats() {
	w, env := suite.request(http.MethodGet, "/api/v1/admin/stats", suite.token, nil)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal("FORBIDDEN", env.Error.Code)

	suite.Require().NoError(suite.db.Model(&models.User{}).Where("id = ?", suite.userID).Update("is_admin", true).Error)
	_, _ = suite.request(http.MethodPost, "/api/v1/progress-items", suite.token, map[string]interface{}{"title": "Counted"})

	w, env = suite.request(http.MethodGet, "/api/v1/admin/stats", suite.token, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var stats AdminStats
	suite.decode(env, &stats)
	suite.EqualValues(1, stats.Users)
	suite.EqualValues(1, stats.Admins)
	suite.EqualValues(1, stats.ProgressItems)

	w, env = suite.request(http.MethodGet, "/api/v1/admin/realtime", suite.token, nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"enabled": false}`, string(env.Data))
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func TestMutationContextCarriesDevice(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set(DeviceIDHeader, "phone-1")
	if got := events.OriginFrom(mutationContext(c)); got != "phone-1" {
		t.Fatalf("origin = %q, want phone-1", got)
	}

	c.Request.Header.Set(DeviceIDHeader, string(bytes.Repeat([]byte("x"), maxDeviceIDLength+1)))
	if got := events.OriginFrom(mutationContext(c)); got != "" {
		t.Fatalf("origin = %q, want empty for an oversized id", got)
	}
}
