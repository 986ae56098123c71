package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const itemID = "0b7c8a3e-4f1d-4c51-9d6a-1f2e3d4c5b6a"

type fakeAPI struct {
	t         *testing.T
	completed []string
	checkIns  []map[string]string
}

func (f *fakeAPI) respond(w http.ResponseWriter, status int, data, meta interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"success": status < 400, "data": data}
	if meta != nil {
		body["meta"] = meta
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/auth/login" && r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"missing token"}}`))
		return
	}

	switch {
	case r.URL.Path == "/api/v1/auth/login":
		f.respond(w, http.StatusOK, map[string]interface{}{
			"user": map[string]interface{}{"id": "u1", "email": "alice@example.com", "username": "alice", "timezone": "UTC"},
			"tokens": map[string]interface{}{
				"access_token": "tok", "refresh_token": "ref",
				"expires_at": time.Now().Add(time.Hour), "refresh_expires_at": time.Now().Add(24 * time.Hour),
			},
		}, nil)
	case r.URL.Path == "/api/v1/progress-items" && r.Method == http.MethodGet:
		f.respond(w, http.StatusOK, []map[string]interface{}{
			{"id": itemID, "title": "Write report", "quadrant": "do", "status": "todo", "progress": 40},
		}, map[string]interface{}{"limit": 100, "offset": 0, "count": 1, "total": 1, "has_more": false})
	case r.URL.Path == "/api/v1/progress-items" && r.Method == http.MethodPost:
		var body map[string]interface{}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		quadrant := "eliminate"
		if body["important"] == true {
			quadrant = "schedule"
		}
		f.respond(w, http.StatusCreated, map[string]interface{}{
			"id": itemID, "title": body["title"], "quadrant": quadrant, "status": "todo", "due_date": body["due_date"],
		}, nil)
	case strings.HasSuffix(r.URL.Path, "/complete"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/progress-items/"), "/complete")
		f.completed = append(f.completed, id)
		f.respond(w, http.StatusOK, map[string]interface{}{"id": id, "title": "Write report", "status": "done"}, nil)
	case r.URL.Path == "/api/v1/commitments":
		assert.Equal(f.t, "false", r.URL.Query().Get("archived"))
		f.respond(w, http.StatusOK, []map[string]interface{}{
			{"id": "c0ffee00-0000-4000-8000-000000000001", "title": "Read", "schedule": []string{"mon", "wed"}, "start_date": "2026-10-01"},
		}, nil)
	case strings.HasSuffix(r.URL.Path, "/logs"):
		var body map[string]string
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.checkIns = append(f.checkIns, body)
		f.respond(w, http.StatusCreated, map[string]string{"id": "l1", "date": body["date"]}, nil)
	case r.URL.Path == "/api/v1/timeline":
		assert.Equal(f.t, "2026-10-01", r.URL.Query().Get("from"))
		assert.Equal(f.t, "2026-10-08", r.URL.Query().Get("to"))
		f.respond(w, http.StatusOK, []map[string]interface{}{
			{"id": "e1", "title": "Standup", "starts_at": "2026-10-02T09:00:00Z", "ends_at": "2026-10-02T09:15:00Z"},
		}, nil)
	case r.URL.Path == "/api/v1/dashboard":
		f.respond(w, http.StatusOK, map[string]interface{}{
			"date": r.URL.Query().Get("date"), "timezone": "UTC",
			"summary": map[string]int{"open_items": 3},
			"progress": map[string]interface{}{
				"counts":  map[string]int{"do": 1, "schedule": 2},
				"overdue": []map[string]string{{"id": itemID, "title": "Write report"}},
			},
		}, nil)
	default:
		http.NotFound(w, r)
	}
}

type CLITestSuite struct {
	suite.Suite
	api    *fakeAPI
	server *httptest.Server
	config string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

func (s *CLITestSuite) SetupTest() {
	s.api = &fakeAPI{t: s.T()}
	s.server = httptest.NewServer(s.api)
	s.config = filepath.Join(s.T().TempDir(), "config.toml")
}

func (s *CLITestSuite) TearDownTest() {
	s.server.Close()
}

func (s *CLITestSuite) run(args ...string) (string, error) {
	var out bytes.Buffer
	root := NewRootCmd(&out, strings.NewReader(""))
	root.SetArgs(append([]string{"--config", s.config, "--api", s.server.URL}, args...))
	err := root.Execute()
	return out.String(), err
}

func (s *CLITestSuite) login() {
	_, err := s.run("login", "--email", "alice@example.com", "--password", "secret123")
	s.Require().NoError(err)
}

func (s *CLITestSuite) TestCommandsNeedLogin() {
	_, err := s.run("items", "list")
	s.Require().Error(err)
	s.Contains(err.Error(), "not logged in")
}

func (s *CLITestSuite) TestLoginAndLogout() {
	out, err := s.run("login", "--email", "alice@example.com", "--password", "secret123")
	s.Require().NoError(err)
	s.Contains(out, "Logged in as alice")

	out, err = s.run("logout")
	s.Require().NoError(err)
	s.Contains(out, "Logged out alice@example.com")

	out, err = s.run("logout")
	s.Require().NoError(err)
	s.Contains(out, "Not logged in")
}

func (s *CLITestSuite) TestItemsListAsTextAndJSON() {
	s.login()

	out, err := s.run("items", "list")
	s.Require().NoError(err)
	s.Contains(out, "0b7c8a3e")
	s.Contains(out, "Write report")
	s.Contains(out, "40%")

	out, err = s.run("-o", "json", "items", "list")
	s.Require().NoError(err)
	var items []map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(out), &items))
	s.Require().Len(items, 1)
	s.Equal(itemID, items[0]["id"])
}

func (s *CLITestSuite) TestItemsAddAndDoneByPrefix() {
	s.login()

	out, err := s.run("items", "add", "Plan", "Q4", "--important", "--due", "2026-11-01")
	s.Require().NoError(err)
	s.Contains(out, "[schedule] Plan Q4")

	_, err = s.run("items", "add", "Bad", "--due", "next week")
	s.Require().Error(err)

	out, err = s.run("items", "done", "0b7c")
	s.Require().NoError(err)
	s.Contains(out, "Completed Write report")
	s.Equal([]string{itemID}, s.api.completed)

	_, err = s.run("items", "done", "ffff")
	s.Require().Error(err)
	s.Contains(err.Error(), "no progress item matches")
}

func (s *CLITestSuite) TestCommitmentsListAndCheckInByTitle() {
	s.login()

	out, err := s.run("commitments", "list")
	s.Require().NoError(err)
	s.Contains(out, "mon,wed")
	s.Contains(out, "Read")

	out, err = s.run("commitments", "checkin", "read", "--date", "2026-10-19", "--note", "two chapters")
	s.Require().NoError(err)
	s.Contains(out, "Checked in Read for 2026-10-19")
	s.Require().Len(s.api.checkIns, 1)
	s.Equal("two chapters", s.api.checkIns[0]["note"])

	_, err = s.run("commitments", "checkin", "Run")
	s.Require().Error(err)
}

func (s *CLITestSuite) TestEventsRange() {
	s.login()

	_, err := s.run("events", "list", "--from", "2026-10-01")
	s.Require().Error(err)

	out, err := s.run("events", "list", "--from", "2026-10-01", "--to", "2026-10-08")
	s.Require().NoError(err)
	s.Contains(out, "Standup")
	s.Contains(out, "09:00-09:15")
}

func (s *CLITestSuite) TestDashboard() {
	s.login()

	out, err := s.run("dashboard", "--date", "2026-10-19")
	s.Require().NoError(err)
	s.Contains(out, "2026-10-19 (UTC)")
	s.Contains(out, "3 open items")
	s.Contains(out, "Write report")
}

func (s *CLITestSuite) TestConfigSetAndGet() {
	out, err := s.run("config", "set", "api.timeout", "10")
	s.Require().NoError(err)
	s.Contains(out, "api.timeout = 10")

	out, err = s.run("config", "get", "api.timeout")
	s.Require().NoError(err)
	s.Equal("api.timeout = 10\n", out)

	_, err = s.run("config", "set", "api.timeout", "soon")
	s.Require().Error(err)
	_, err = s.run("config", "set", "theme", "dark")
	s.Require().Error(err)
}

func TestInvalidOutputFormat(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd(&out, strings.NewReader(""))
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "config.toml"), "-o", "yaml", "whoami"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
