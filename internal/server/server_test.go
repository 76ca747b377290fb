package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/events"
	"taskflow/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	ctx := context.Background()
	if _, err := e.CreateTenant(ctx, engine.TenantCreateOptions{ID: "acme", Name: "Acme", Plan: domain.PlanPro}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	for _, u := range []engine.UserCreateOptions{
		{TenantID: "acme", ID: "u-owner", Email: "owner@acme.test", Name: "Owner", Role: "admin"},
		{TenantID: "acme", ID: "u-member", Email: "member@acme.test", Name: "Member"},
		{TenantID: "acme", ID: "u-out", Email: "out@acme.test", Name: "Outsider"},
	} {
		if _, err := e.AddUser(ctx, u); err != nil {
			t.Fatalf("add user %s: %v", u.ID, err)
		}
	}
	hub := events.NewHub(nil, nil)
	e.Events = &events.Dispatcher{Writer: &events.Writer{Repo: e.Repo}, Publishers: []events.Publisher{hub}}
	handler, err := New(Config{
		Engine:   e,
		Hub:      hub,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowDevHeaders: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func as(userID string) map[string]string {
	return map[string]string{"X-User-Id": userID, "X-Tenant-Id": "acme"}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func seedProject(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "Launch",
	}, as("u-owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
		t.Fatalf("decode project: %v (%s)", err, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/members", map[string]any{
		"user_id": "u-member",
	}, as("u-owner"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add member status %d: %s", res.StatusCode, string(data))
	}
	return p.ID
}

func createTask(t *testing.T, srv *testServer, projectID string, body map[string]any, user string) domain.Task {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/tasks", body, as(user))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return task
}

func TestHealthIsPublicAndAPIRequiresAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "ok") {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if e := decodeError(t, data); e.Code != "unauthorized" {
		t.Fatalf("unexpected error code %q", e.Code)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestJWTAndAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	token, err := SignToken(testSecret, "u-member", "acme", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + token}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.User.ID != "u-member" || me.Tenant.ID != "acme" {
		t.Fatalf("unexpected principal: %+v", me)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/api-keys", map[string]any{"name": "ci"}, bearer)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create api key status %d: %s", res.StatusCode, string(data))
	}
	var created APIKeyCreatedResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal api key: %v", err)
	}
	if !strings.HasPrefix(created.Token, "tf_") {
		t.Fatalf("unexpected token %q", created.Token)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": created.Token})
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "u-member") {
		t.Fatalf("api key auth: %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v1/api-keys/"+created.Key.ID, nil, bearer)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete api key status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": created.Token})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key should be rejected, got %d", res.StatusCode)
	}
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	body := map[string]any{"email": "new@acme.test", "name": "New"}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users", body, as("u-member"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users", body, as("u-owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users", body, as("u-owner"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users/u-out/deactivate", nil, as("u-owner"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("deactivate status %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, as("u-out"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("inactive user should be rejected, got %d", res.StatusCode)
	}
}

func TestDeactivatedUserLosesTokenAccess(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := seedProject(t, srv)

	token, err := SignToken(testSecret, "u-member", "acme", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	bearer := map[string]string{"Authorization": "Bearer " + token}
	createURL := srv.URL + "/v1/projects/" + projectID + "/tasks"
	res, data := doJSON(t, srv.Client(), http.MethodPost, createURL, map[string]any{"title": "before"}, bearer)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users/u-member/deactivate", nil, as("u-owner"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("deactivate status %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, createURL, map[string]any{"title": "after deactivation"}, bearer)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated bearer, got %d: %s", res.StatusCode, string(data))
	}
	if got := decodeError(t, data); got.Message != "User not found or inactive" {
		t.Fatalf("unexpected error: %+v", got)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+projectID, nil, as("u-member"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated dev header, got %d", res.StatusCode)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := seedProject(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/tasks", map[string]any{
		"title":     "Ship",
		"assignees": []string{"u-out"},
	}, as("u-member"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-member assignee, got %d: %s", res.StatusCode, string(data))
	}
	if e := decodeError(t, data); e.Code != "validation_failed" || e.Message != "All assignees must be project members" {
		t.Fatalf("unexpected error: %+v", e)
	}

	a := createTask(t, srv, projectID, map[string]any{"title": "Design"}, "u-member")
	b := createTask(t, srv, projectID, map[string]any{"title": "Build", "assignees": []string{"u-member"}}, "u-owner")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+b.ID+"/dependencies", map[string]any{
		"task_id": a.ID,
		"type":    "blocked-by",
	}, as("u-member"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add dependency status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+a.ID+"/dependencies", map[string]any{
		"task_id": b.ID,
		"type":    "blocked-by",
	}, as("u-member"))
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Message != "Circular dependency detected" {
		t.Fatalf("expected circular dependency rejection, got %d: %s", res.StatusCode, string(data))
	}

	var cs CanStartResponse
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+b.ID+"/can-start", nil, as("u-member"))
	if err := json.Unmarshal(data, &cs); err != nil || res.StatusCode != http.StatusOK || cs.CanStart {
		t.Fatalf("expected blocked task, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+b.ID+"/status", map[string]any{"status": "done"}, as("u-member"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("done while blocked should be allowed, got %d: %s", res.StatusCode, string(data))
	}
	var done domain.Task
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if done.Status != domain.StatusDone || done.CompletedAt == nil {
		t.Fatalf("expected completed task, got %+v", done)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+a.ID+"/comments", map[string]any{"text": "  "}, as("u-member"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank comment, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+a.ID+"/comments", map[string]any{"text": "looks good"}, as("u-member"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("comment status %d: %s", res.StatusCode, string(data))
	}

	var activity ActivityPage
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+b.ID+"/activity", nil, as("u-member"))
	if err := json.Unmarshal(data, &activity); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("activity: %d %s", res.StatusCode, string(data))
	}
	var actions []string
	for _, entry := range activity.Items {
		actions = append(actions, entry.Action)
	}
	if strings.Join(actions, ",") != "created,dependency_added,updated" {
		t.Fatalf("unexpected activity trail: %v", actions)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+a.ID, nil, as("u-member"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member delete should be forbidden, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+a.ID, nil, as("u-owner"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("owner delete status %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+b.ID, nil, as("u-member"))
	var after domain.Task
	if err := json.Unmarshal(data, &after); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", res.StatusCode, string(data))
	}
	if len(after.Dependencies) != 0 {
		t.Fatalf("dependencies on deleted task should be pruned: %+v", after.Dependencies)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+projectID, nil, as("u-member"))
	var project ProjectResponse
	if err := json.Unmarshal(data, &project); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("get project: %d %s", res.StatusCode, string(data))
	}
	if project.Metadata.TotalTasks != 1 || project.Metadata.CompletedTasks != 1 || project.Progress != 100 {
		t.Fatalf("unexpected counters: %+v progress=%d", project.Metadata, project.Progress)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := seedProject(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/missing", nil, as("u-member"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if e := decodeError(t, data); e.Code != "not_found" || e.Message == "" {
		t.Fatalf("unexpected envelope: %+v", e)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+projectID, nil, as("u-out"))
	if res.StatusCode != http.StatusForbidden || decodeError(t, data).Code != "forbidden" {
		t.Fatalf("expected 403 for outsider, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users", map[string]any{"email": "owner@acme.test", "name": "Again"}, as("u-owner"))
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Code != "conflict" {
		t.Fatalf("expected 409 for duplicate email, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCallerCannotChooseEntityIDs(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := seedProject(t, srv)

	// An existing id must never surface as a conflict, whoever owns it.
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{"name": "Other", "id": projectID}, as("u-member"))
	if res.StatusCode == http.StatusConflict {
		t.Fatalf("caller-supplied project id leaked existence: %s", string(data))
	}
	if res.StatusCode == http.StatusCreated {
		var p ProjectResponse
		if err := json.Unmarshal(data, &p); err != nil || p.ID == projectID {
			t.Fatalf("expected a generated project id, got %+v (%v)", p, err)
		}
	}

	task := createTask(t, srv, projectID, map[string]any{"title": "Design"}, "u-owner")
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/tasks", map[string]any{"title": "Copy", "id": task.ID}, as("u-owner"))
	if res.StatusCode == http.StatusConflict {
		t.Fatalf("caller-supplied task id leaked existence: %s", string(data))
	}
	if res.StatusCode == http.StatusCreated {
		var dup domain.Task
		if err := json.Unmarshal(data, &dup); err != nil || dup.ID == task.ID {
			t.Fatalf("expected a generated task id, got %+v (%v)", dup, err)
		}
	}
}

func TestNotificationsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := seedProject(t, srv)
	createTask(t, srv, projectID, map[string]any{"title": "Review", "assignees": []string{"u-member"}}, "u-owner")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, as("u-member"))
	var list []domain.Notification
	if err := json.Unmarshal(data, &list); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications: %d %s", res.StatusCode, string(data))
	}
	if len(list) != 1 || list[0].Type != "task_assigned" {
		t.Fatalf("unexpected notifications: %+v", list)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/notifications/read-all", nil, as("u-member"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"updated":1`) {
		t.Fatalf("mark all read: %d %s", res.StatusCode, string(data))
	}
}

func TestWebsocketRequiresMembership(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	projectID := seedProject(t, srv)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/projects/" + projectID + "/ws"

	header := http.Header{}
	for k, v := range as("u-out") {
		header.Set(k, v)
	}
	if _, res, err := websocket.DefaultDialer.Dial(wsURL, header); err == nil || res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider should be refused with 403, got err=%v", err)
	}

	token, err := SignToken(testSecret, "u-member", "acme", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	var hello map[string]any
	if err := conn.ReadJSON(&hello); err != nil || hello["type"] != "connected" {
		t.Fatalf("expected welcome, got %+v (%v)", hello, err)
	}

	createTask(t, srv, projectID, map[string]any{"title": "Live"}, "u-owner")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg events.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != events.TaskCreated || msg.ProjectID != projectID {
		t.Fatalf("unexpected event: %+v", msg)
	}
}
