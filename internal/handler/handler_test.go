package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/model"
	"github.com/Shivanand-hulikatti/orgevents/internal/repository"
	"github.com/Shivanand-hulikatti/orgevents/internal/service"
	"github.com/Shivanand-hulikatti/orgevents/internal/testfixtures"
)

type apiClient struct {
	t      *testing.T
	server *httptest.Server
	clock  *testfixtures.Clock
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testfixtures.NewClock(time.Time{})
	svc := service.NewEventService(repository.NewMemoryStore(), repository.NewMemoryAuditLog(),
		service.WithClock(clock.Now),
		service.WithLogger(logger),
	)
	srv := httptest.NewServer(NewRouter(NewEventHandler(svc), logger))
	t.Cleanup(srv.Close)
	return &apiClient{t: t, server: srv, clock: clock}
}

func (c *apiClient) do(method, path string, actor model.Actor, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if actor.TenantID != "" {
		req.Header.Set(HeaderTenantID, actor.TenantID)
		req.Header.Set(HeaderActorID, actor.ActorID)
		req.Header.Set(HeaderRoles, strings.Join(actor.Roles, ", "))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

var (
	orgAdmin = model.Actor{TenantID: "t1", ActorID: "admin-1", Roles: []string{"ADMIN"}}
	m1       = model.Actor{TenantID: "t1", ActorID: "m1", Roles: []string{"member"}}
	m2       = model.Actor{TenantID: "t1", ActorID: "m2", Roles: []string{"member"}}
)

func (c *apiClient) createPublished(title string, startsIn time.Duration, capacity int) model.Event {
	c.t.Helper()
	start := c.clock.Now().Add(startsIn)
	var e model.Event
	status := c.do(http.MethodPost, "/events", orgAdmin, model.CreateEventRequest{
		Title:     title,
		StartDate: start.Format(time.RFC3339),
		EndDate:   start.Add(time.Hour).Format(time.RFC3339),
		Capacity:  &capacity,
	}, &e)
	if status != http.StatusCreated {
		c.t.Fatalf("create: status %d", status)
	}
	if status := c.do(http.MethodPost, "/events/"+e.ID+"/publish", orgAdmin, nil, &e); status != http.StatusOK {
		c.t.Fatalf("publish: status %d", status)
	}
	return e
}

func TestRegistrationFlow(t *testing.T) {
	api := newAPI(t)
	e := api.createPublished("E1", 48*time.Hour, 1)

	var reg model.Registration
	if status := api.do(http.MethodPost, "/events/"+e.ID+"/register", m1, nil, &reg); status != http.StatusCreated {
		t.Fatalf("register m1: status %d", status)
	}
	if reg.MemberID != "m1" {
		t.Fatalf("expected member m1, got %q", reg.MemberID)
	}

	var errResp model.ErrorResponse
	if status := api.do(http.MethodPost, "/events/"+e.ID+"/register", m1, nil, &errResp); status != http.StatusConflict || errResp.Kind != "duplicate_registration" {
		t.Fatalf("expected duplicate_registration 409, got %d %+v", status, errResp)
	}
	if status := api.do(http.MethodPost, "/events/"+e.ID+"/register", m2, nil, &errResp); status != http.StatusConflict || errResp.Kind != "event_full" {
		t.Fatalf("expected event_full 409, got %d %+v", status, errResp)
	}

	errResp = model.ErrorResponse{}
	status := api.do(http.MethodPut, "/events/"+e.ID+"/capacity", orgAdmin, model.UpdateCapacityRequest{Capacity: intPtr(0)}, &errResp)
	if status != http.StatusUnprocessableEntity || len(errResp.Issues) != 1 || errResp.Issues[0].Issue != "below_registrations" {
		t.Fatalf("expected below_registrations 422, got %d %+v", status, errResp)
	}

	if status := api.do(http.MethodDelete, "/events/"+e.ID+"/register", m1, nil, nil); status != http.StatusNoContent {
		t.Fatalf("cancel: status %d", status)
	}
	if status := api.do(http.MethodPost, "/events/"+e.ID+"/register", m2, model.RegisterRequest{MemberEmail: "m2@example.org"}, &reg); status != http.StatusCreated {
		t.Fatalf("register m2: status %d", status)
	}

	var regs []model.Registration
	if status := api.do(http.MethodGet, "/events/"+e.ID+"/registrations", orgAdmin, nil, &regs); status != http.StatusOK {
		t.Fatalf("list registrations: status %d", status)
	}
	if len(regs) != 1 || regs[0].MemberEmail != "m2@example.org" {
		t.Fatalf("unexpected registrations %+v", regs)
	}

	var audit []model.AuditRecord
	api.do(http.MethodGet, "/audit", orgAdmin, nil, &audit)
	if len(audit) != 4 {
		t.Fatalf("expected 4 audit records, got %d", len(audit))
	}
}

func TestErrorStatuses(t *testing.T) {
	api := newAPI(t)
	e := api.createPublished("Status codes", 48*time.Hour, 10)
	outsider := model.Actor{TenantID: "t2", ActorID: "admin-2", Roles: []string{"admin"}}

	tests := []struct {
		name   string
		method string
		path   string
		actor  model.Actor
		body   any
		want   int
		kind   string
	}{
		{"no identity", http.MethodGet, "/events", model.Actor{}, nil, http.StatusUnauthorized, "unauthorized"},
		{"member publishing", http.MethodPost, "/events/" + e.ID + "/publish", m1, nil, http.StatusForbidden, "forbidden"},
		{"other tenant", http.MethodPost, "/events/" + e.ID + "/publish", outsider, nil, http.StatusNotFound, "not_found"},
		{"missing event", http.MethodGet, "/events/nope", orgAdmin, nil, http.StatusNotFound, "not_found"},
		{"already published", http.MethodPost, "/events/" + e.ID + "/publish", orgAdmin, nil, http.StatusConflict, "conflict"},
		{"invalid create", http.MethodPost, "/events", orgAdmin, model.CreateEventRequest{}, http.StatusUnprocessableEntity, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp model.ErrorResponse
			status := api.do(tt.method, tt.path, tt.actor, tt.body, &resp)
			if status != tt.want || resp.Kind != tt.kind {
				t.Fatalf("expected %d %s, got %d %+v", tt.want, tt.kind, status, resp)
			}
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, api.server.URL+"/events", bytes.NewBufferString(`{"title":`))
		req.Header.Set(HeaderTenantID, "t1")
		req.Header.Set(HeaderActorID, "admin-1")
		req.Header.Set(HeaderRoles, "admin")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestNonNumericCapacityIsAFieldIssue(t *testing.T) {
	api := newAPI(t)
	e := api.createPublished("Typed fields", 48*time.Hour, 10)
	start := api.clock.Now().Add(24 * time.Hour)

	tests := []struct {
		name   string
		method string
		path   string
		body   map[string]any
	}{
		{"update capacity", http.MethodPut, "/events/" + e.ID + "/capacity", map[string]any{"capacity": "ten"}},
		{"create event", http.MethodPost, "/events", map[string]any{
			"title":      "Typed create",
			"start_date": start.Format(time.RFC3339),
			"end_date":   start.Add(time.Hour).Format(time.RFC3339),
			"capacity":   "lots",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp model.ErrorResponse
			status := api.do(tt.method, tt.path, orgAdmin, tt.body, &resp)
			if status != http.StatusUnprocessableEntity || resp.Kind != "validation_failed" {
				t.Fatalf("expected 422 validation_failed, got %d %+v", status, resp)
			}
			if len(resp.Issues) != 1 || resp.Issues[0] != (model.FieldIssue{Field: "capacity", Issue: "invalid_format"}) {
				t.Fatalf("expected capacity invalid_format, got %+v", resp.Issues)
			}
		})
	}
}

func TestListEventsAndReminders(t *testing.T) {
	api := newAPI(t)
	soon := api.createPublished("E2", 6*time.Hour, 10)
	api.createPublished("E3", 48*time.Hour, 10)
	api.do(http.MethodPost, "/events/"+soon.ID+"/register", m1, nil, nil)

	var page model.Page
	if status := api.do(http.MethodGet, "/events?page=1&page_size=1", m1, nil, &page); status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	if page.TotalItems != 2 || page.TotalPages != 2 || len(page.Items) != 1 || page.Items[0].ID != soon.ID {
		t.Fatalf("unexpected page %+v", page)
	}

	var run model.ReminderRun
	if status := api.do(http.MethodPost, "/reminders/run", orgAdmin, nil, &run); status != http.StatusOK || run.Sent != 1 {
		t.Fatalf("expected 1 reminder, got %d %+v", status, run)
	}
	if status := api.do(http.MethodPost, "/reminders/run", orgAdmin, map[string]any{"now": api.clock.Now()}, &run); status != http.StatusOK || run.Sent != 0 {
		t.Fatalf("expected idempotent second run, got %d %+v", status, run)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	api := newAPI(t)
	var health map[string]string
	if status := api.do(http.MethodGet, "/health", model.Actor{}, nil, &health); status != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", status, health)
	}
	e := api.createPublished("Metered", 48*time.Hour, 10)
	api.do(http.MethodPost, "/events/"+e.ID+"/register", m1, nil, nil)

	resp, err := http.Get(api.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d %v", resp.StatusCode, err)
	}
	exposition := string(body)
	if !strings.Contains(exposition, `orgevents_registration_changes_total{change="created"}`) {
		t.Fatal("expected registration change counter in exposition")
	}
	if strings.Contains(exposition, "tenant_id=") {
		t.Fatal("expected no per-tenant metric series")
	}
}

func intPtr(v int) *int { return &v }
