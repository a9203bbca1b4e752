package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distline/internal/board"
	"distline/internal/config"
	"distline/internal/db"
	"distline/internal/domain"
	"distline/internal/engine"
	"distline/internal/metrics"
	"distline/internal/migrate"
)

const (
	adminID = "admin-1"
	agentID = "agent-1"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	APIKey string
	client *http.Client
}

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	e := engine.New(conn, cfg)
	admin, err := e.Bootstrap(ctx, adminID)
	require.NoError(t, err)
	_, err = e.CreateGroup(ctx, admin, "north", "North route")
	require.NoError(t, err)
	_, err = e.AuthorizeAgent(ctx, admin, "north", agentID)
	require.NoError(t, err)
	return e
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	e := newTestEngine(t, config.Default())
	reg := prometheus.NewRegistry()
	e.Metrics = metrics.New(reg)
	key, err := e.CreateAPIKey(context.Background(), domain.Actor{ID: adminID, Role: domain.RoleAdmin}, "", "tests")
	require.NoError(t, err)

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowDevLogin:          true,
			AllowLegacyActorHeader: true,
		},
		Metrics:  e.Metrics,
		Gatherer: reg,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL, Engine: e, APIKey: key.Key, client: srv.Client()}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, data
}

func (s *testServer) asAdmin(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	return s.do(t, method, path, body, map[string]string{"X-Api-Key": s.APIKey})
}

func (s *testServer) asAgent(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	return s.do(t, method, path, body, map[string]string{"X-Actor-Id": agentID})
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) createSchedule(t *testing.T) domain.Schedule {
	t.Helper()
	status, body := s.asAdmin(t, http.MethodPost, "/v0/schedules", map[string]any{"group_id": "north"})
	require.Equal(t, http.StatusCreated, status, string(body))
	return decode[domain.Schedule](t, body)
}

func (s *testServer) createOrder(t *testing.T, name string, scheduleID *int64) domain.Item {
	t.Helper()
	req := map[string]any{"customer_name": name, "city": "Haifa", "amount": "100", "agent_id": agentID}
	if scheduleID != nil {
		req["primary_schedule_id"] = *scheduleID
	}
	status, body := s.asAdmin(t, http.MethodPost, "/v0/items/order", req)
	require.Equal(t, http.StatusCreated, status, string(body))
	return decode[domain.Item](t, body)
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, http.MethodGet, "/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRequestsWithoutCredentialsAreRejected(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/v0/board", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", decode[errorEnvelope](t, body).Error.Code)

	status, _ = s.do(t, http.MethodGet, "/v0/board", nil, map[string]string{"X-Actor-Id": "ghost"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/v0/board", nil, map[string]string{"X-Api-Key": "dl_nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAPIKeyResolvesToOwner(t *testing.T) {
	s := newTestServer(t)
	status, body := s.asAdmin(t, http.MethodGet, "/v0/me", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	me := decode[MeResponse](t, body)
	assert.Equal(t, adminID, me.ActorID)
	assert.Equal(t, "admin", me.Role)
	assert.Equal(t, "api_key", me.Source)
	assert.Contains(t, me.Permissions, "schedule.produce")
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodPost, "/v0/auth/dev/login", map[string]any{"actor_id": agentID}, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	token := decode[DevLoginResponse](t, body).Token
	require.NotEmpty(t, token)

	status, body = s.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, status, string(body))
	me := decode[MeResponse](t, body)
	assert.Equal(t, agentID, me.ActorID)
	assert.Equal(t, "agent", me.Role)
	assert.Equal(t, "jwt", me.Source)

	status, _ = s.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"Authorization": "Bearer " + token + "x"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestProduceTwiceIsRejected(t *testing.T) {
	s := newTestServer(t)
	sched := s.createSchedule(t)
	s.createOrder(t, "Dana", &sched.ID)

	status, body := s.asAdmin(t, http.MethodPost, fmt.Sprintf("/v0/schedules/%d/produce", sched.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	res := decode[engine.ProduceResult](t, body)
	require.NotNil(t, res.Schedule.ProductionNumber)
	assert.Equal(t, 1, res.Completed)
	assert.Empty(t, res.Warnings)

	status, body = s.asAdmin(t, http.MethodPost, fmt.Sprintf("/v0/schedules/%d/produce", sched.ID), nil)
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
	assert.Equal(t, "VALIDATION_REJECTION", decode[errorEnvelope](t, body).Error.Code)

	status, body = s.asAdmin(t, http.MethodGet, fmt.Sprintf("/v0/schedules/%d", sched.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, *res.Schedule.ProductionNumber, *decode[domain.Schedule](t, []byte(mustField(t, body, "schedule"))).ProductionNumber)
}

func mustField(t *testing.T, body []byte, key string) string {
	t.Helper()
	m := decode[map[string]json.RawMessage](t, body)
	raw, ok := m[key]
	require.True(t, ok, "missing %s in %s", key, body)
	return string(raw)
}

func TestAgentCannotProduce(t *testing.T) {
	s := newTestServer(t)
	sched := s.createSchedule(t)

	status, body := s.asAgent(t, http.MethodPost, fmt.Sprintf("/v0/schedules/%d/produce", sched.ID), nil)
	require.Equal(t, http.StatusForbidden, status, string(body))
	env := decode[errorEnvelope](t, body)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
	assert.Equal(t, "schedule.produce", env.Error.Details["permission"])
}

func TestProduceUnknownScheduleIsNotFound(t *testing.T) {
	s := newTestServer(t)
	status, body := s.asAdmin(t, http.MethodPost, "/v0/schedules/999/produce", nil)
	require.Equal(t, http.StatusNotFound, status, string(body))
	assert.Equal(t, "NOT_FOUND", decode[errorEnvelope](t, body).Error.Code)
}

func TestZoneDropAssignsItem(t *testing.T) {
	s := newTestServer(t)
	sched := s.createSchedule(t)
	item := s.createOrder(t, "Dana", nil)

	status, body := s.asAdmin(t, http.MethodGet, "/v0/zones", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	strip := decode[zonesBody](t, body).Zones
	require.NotEmpty(t, strip)
	require.NotNil(t, strip[0].ScheduleID)
	assert.Equal(t, sched.ID, *strip[0].ScheduleID)

	status, body = s.asAdmin(t, http.MethodPost, fmt.Sprintf("/v0/zones/%d/drop", strip[0].Index), map[string]any{"variant": "order", "id": item.ID})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = s.asAdmin(t, http.MethodGet, fmt.Sprintf("/v0/items/order/%d", item.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	got := decode[domain.Item](t, body)
	require.NotNil(t, got.PrimaryScheduleID)
	assert.Equal(t, sched.ID, *got.PrimaryScheduleID)
}

func TestZoneDropOnEmptyZoneIsRejected(t *testing.T) {
	s := newTestServer(t)
	item := s.createOrder(t, "Dana", nil)

	status, body := s.asAdmin(t, http.MethodPost, "/v0/zones/3/drop", map[string]any{"variant": "order", "id": item.ID})
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
	assert.Equal(t, "VALIDATION_REJECTION", decode[errorEnvelope](t, body).Error.Code)
}

func TestBoardShowsPool(t *testing.T) {
	s := newTestServer(t)
	s.createSchedule(t)
	s.createOrder(t, "Dana", nil)

	status, body := s.asAdmin(t, http.MethodGet, "/v0/board", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var view struct {
		Zones []struct {
			Index int             `json:"index"`
			Line  json.RawMessage `json:"line"`
		} `json:"zones"`
		Pool []struct {
			Item domain.Item `json:"item"`
		} `json:"pool"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Pool, 1)
	assert.Equal(t, "Dana", view.Pool[0].Item.CustomerName)
	require.NotEmpty(t, view.Zones)
	assert.NotEmpty(t, view.Zones[0].Line)
}

func TestAgentListsOnlyOwnItems(t *testing.T) {
	s := newTestServer(t)
	s.createOrder(t, "Dana", nil)
	status, body := s.asAdmin(t, http.MethodPost, "/v0/items/order", map[string]any{"customer_name": "Omer", "city": "Acre", "amount": "5"})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.asAgent(t, http.MethodGet, "/v0/items", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	items := decode[[]domain.Item](t, body)
	require.Len(t, items, 1)
	assert.Equal(t, "Dana", items[0].CustomerName)

	status, body = s.asAdmin(t, http.MethodGet, "/v0/items", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Len(t, decode[[]domain.Item](t, body), 2)
}

func TestUpdateItemMovesAndReturnsToPool(t *testing.T) {
	s := newTestServer(t)
	sched := s.createSchedule(t)
	item := s.createOrder(t, "Dana", nil)
	path := fmt.Sprintf("/v0/items/order/%d", item.ID)

	status, body := s.asAdmin(t, http.MethodPatch, path, map[string]any{"schedule_id": sched.ID, "remark": "ring twice"})
	require.Equal(t, http.StatusOK, status, string(body))
	got := decode[domain.Item](t, body)
	require.NotNil(t, got.PrimaryScheduleID)
	assert.True(t, got.Modified)

	status, body = s.asAdmin(t, http.MethodPatch, path, `{"schedule_id": null}`)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Nil(t, decode[domain.Item](t, body).PrimaryScheduleID)

	status, _ = s.asAdmin(t, http.MethodPatch, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpdateScheduleDateIsOneWay(t *testing.T) {
	s := newTestServer(t)
	sched := s.createSchedule(t)
	path := fmt.Sprintf("/v0/schedules/%d", sched.ID)

	status, body := s.asAdmin(t, http.MethodPatch, path, map[string]any{"scheduled_date": "2024-03-01"})
	require.Equal(t, http.StatusOK, status, string(body))
	got := decode[domain.Schedule](t, body)
	require.NotNil(t, got.ScheduledDate)
	assert.Equal(t, "2024-03-01", *got.ScheduledDate)

	status, body = s.asAdmin(t, http.MethodPatch, path, `{"scheduled_date": null}`)
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
	assert.Equal(t, "VALIDATION_REJECTION", decode[errorEnvelope](t, body).Error.Code)

	status, body = s.asAdmin(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	view := decode[board.ScheduleView](t, body)
	assert.Equal(t, domain.StateScheduled, view.State)

	status, body = s.asAdmin(t, http.MethodPatch, path, map[string]any{"scheduled_date": "01/03/2024"})
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
}

func TestCancelledItemCannotBeMoved(t *testing.T) {
	s := newTestServer(t)
	sched := s.createSchedule(t)
	item := s.createOrder(t, "Dana", nil)
	path := fmt.Sprintf("/v0/items/order/%d", item.ID)

	status, body := s.asAdmin(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.NotNil(t, decode[domain.Item](t, body).CancelledAt)

	status, body = s.asAdmin(t, http.MethodPatch, path, map[string]any{"schedule_id": sched.ID})
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
}

func TestDirectivesRoundTrip(t *testing.T) {
	s := newTestServer(t)
	item := s.createOrder(t, "Dana", nil)
	path := fmt.Sprintf("/v0/directives/order/%d", item.ID)

	status, body := s.asAdmin(t, http.MethodPut, path, map[string]any{"customer_name": "Noa", "city": "Haifa", "exists_in_system": true})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = s.asAgent(t, http.MethodPut, path, map[string]any{"customer_name": "Noa", "city": "Haifa", "exists_in_system": false})
	require.Equal(t, http.StatusForbidden, status, string(body))

	status, body = s.asAdmin(t, http.MethodGet, "/v0/directives", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Len(t, decode[[]domain.ReplacementDirective](t, body), 1)

	status, _ = s.asAdmin(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.asAdmin(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEventsArePaged(t *testing.T) {
	s := newTestServer(t)
	s.createSchedule(t)

	status, body := s.asAdmin(t, http.MethodGet, "/v0/events?limit=1", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	page := decode[paginatedEvents](t, body)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "schedule.created", page.Items[0].Type)
	require.NotEmpty(t, page.NextCursor)

	status, body = s.asAdmin(t, http.MethodGet, "/v0/events?limit=1&cursor="+page.NextCursor, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	next := decode[paginatedEvents](t, body)
	require.Len(t, next.Items, 1)
	assert.Less(t, next.Items[0].ID, page.Items[0].ID)

	status, _ = s.asAgent(t, http.MethodGet, "/v0/events", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestConfigImportIsValidated(t *testing.T) {
	s := newTestServer(t)
	status, body := s.asAdmin(t, http.MethodPut, "/v0/config", map[string]any{
		"board":      map[string]any{"zones": 0},
		"visibility": map[string]any{},
		"production": map[string]any{"allocator": "sql"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))

	status, body = s.asAdmin(t, http.MethodPut, "/v0/config", map[string]any{
		"board":      map[string]any{"zones": 6},
		"visibility": map[string]any{},
		"production": map[string]any{"allocator": "sql"},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = s.asAdmin(t, http.MethodGet, "/v0/config", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, 6, decode[config.Config](t, body).Board.Zones)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.asAdmin(t, http.MethodGet, "/v0/board", nil)

	status, body := s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "distline_http_requests_total")
}

func TestWebhookDeliversNewEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []http.Header
	)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(receiver.Close)

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: receiver.URL, Secret: "s3cret", Events: []string{"schedule.created"}}}
	e := newTestEngine(t, cfg)
	d := newWebhookDispatcher(e, nil)
	require.NotNil(t, d)
	ctx := context.Background()

	// Events from before the first poll are not replayed.
	d.dispatchAll(ctx)
	assert.Empty(t, received)

	admin := domain.Actor{ID: adminID, Role: domain.RoleAdmin}
	_, err := e.CreateGroup(ctx, admin, "south", "")
	require.NoError(t, err)
	sched, err := e.CreateSchedule(ctx, admin, "south")
	require.NoError(t, err)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "schedule.created", received[0].Type)
	assert.Equal(t, fmt.Sprint(sched.ID), received[0].EntityID)
	assert.Equal(t, "schedule.created", headers[0].Get("X-Distline-Event"))
	assert.Equal(t, "s3cret", headers[0].Get("X-Distline-Secret"))
	assert.NotEmpty(t, headers[0].Get("X-Distline-Delivery"))
}

func TestWebhooksDisabledWithoutConfig(t *testing.T) {
	e := newTestEngine(t, config.Default())
	assert.Nil(t, newWebhookDispatcher(e, nil))
}
