package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/waypoint/internal/authmw"
	"github.com/linnemanlabs/waypoint/internal/incident"
	"github.com/linnemanlabs/waypoint/internal/incident/memstore"
	"github.com/linnemanlabs/waypoint/internal/incidentapi"
	"github.com/linnemanlabs/waypoint/internal/selection"
)

var _ selection.Backend = (*Client)(nil)

const testKey = "test-key"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := incident.NewService(memstore.New(), nil, nil, incident.Hooks{})
	r := chi.NewRouter()
	r.Use(authmw.APIKey(testKey))
	incidentapi.New(nil, svc).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, baseURL, key string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, APIKey: key, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := Config{BaseURL: "http://localhost:8080", APIKey: "k", Timeout: time.Second, RequestsPerSecond: 5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.BaseURL = "/incidents" }},
		{"empty url", func(c *Config) { c.BaseURL = "" }},
		{"no key", func(c *Config) { c.APIKey = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative rps", func(c *Config) { c.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestClient_RoundTrip(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	c := newClient(t, srv.URL+"/", testKey)
	ctx := context.Background()

	req := incident.CreateRequest{
		Metadata: incident.Metadata{Name: "Mining camp", IncidentType: "mining"},
		Entries: []incident.Entry{
			{SourceTable: "alerts", SourceID: "123"},
			{SourceTable: "mapeo_data", SourceID: "doc-1", Notes: "seen from the river"},
		},
	}
	inc, err := c.CreateIncident(ctx, req)
	if err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	if inc.ID == "" || inc.Name != "Mining camp" || inc.EntryCount != 2 {
		t.Fatalf("created = %+v", inc)
	}

	d, err := c.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if len(d.Entries) != 2 || d.Entries[1] != req.Entries[1] {
		t.Errorf("entries = %+v, want %+v", d.Entries, req.Entries)
	}
	if d.Data.EntriesByTable["alerts"] != 1 || d.Data.EntriesByTable["mapeo_data"] != 1 {
		t.Errorf("incidentData = %+v", d.Data)
	}

	page, err := c.ListIncidents(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if page.Total != 1 || page.Limit != 10 || len(page.Incidents) != 1 || page.Incidents[0].ID != inc.ID {
		t.Errorf("page = %+v", page)
	}
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	ctx := context.Background()

	c := newClient(t, srv.URL, testKey)
	_, err := c.GetIncident(ctx, "missing")
	if !IsNotFound(err) {
		t.Errorf("GetIncident(missing) err = %v, want not found", err)
	}

	_, err = c.CreateIncident(ctx, incident.CreateRequest{Metadata: incident.Metadata{Name: "x"}})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("CreateIncident(no entries) err = %v, want 400", err)
	}
	if !strings.Contains(se.Message, "at least one entry") {
		t.Errorf("message = %q", se.Message)
	}

	bad := newClient(t, srv.URL, "wrong")
	_, err = bad.ListIncidents(ctx, 0, 0)
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("ListIncidents(wrong key) err = %v, want 401", err)
	}
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	c, err := New(Config{BaseURL: srv.URL, APIKey: testKey, Timeout: time.Second, RequestsPerSecond: 0.001})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.ListIncidents(context.Background(), 1, 0); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.ListIncidents(ctx, 1, 0); err == nil {
		t.Fatal("second request within the limit interval succeeded")
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	if got := (&StatusError{Code: 500}).Error(); got != "backend: status 500" {
		t.Errorf("Error() = %q", got)
	}
	wrapped := errors.Join(errors.New("outer"), &StatusError{Code: http.StatusNotFound})
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("IsNotFound(plain) = true")
	}
}
