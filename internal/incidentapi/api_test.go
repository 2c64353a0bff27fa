package incidentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/waypoint/internal/incident"
	"github.com/linnemanlabs/waypoint/internal/incident/memstore"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	svc := incident.NewService(memstore.New(), nil, log.Nop(), incident.Hooks{})
	r := chi.NewRouter()
	New(nil, svc).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const validCreate = `{
	"name": "Logging road",
	"incident_type": "deforestation",
	"entries": [
		{"source_table": "alerts", "source_id": "123"},
		{"source_table": "mapeo_data", "source_id": "doc-1", "notes": "photo"},
		{"source_table": "alerts", "source_id": "123"}
	]
}`

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, incident.NewService(memstore.New(), nil, nil, incident.Hooks{}))
	if api.logger == nil {
		t.Fatal("New(nil, svc) left logger nil; expected Nop logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil)
}

// Routing

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"list", http.MethodGet, "/incidents", "", http.StatusOK},
		{"list paged", http.MethodGet, "/incidents?limit=10&offset=20", "", http.StatusOK},
		{"list bad limit", http.MethodGet, "/incidents?limit=ten", "", http.StatusBadRequest},
		{"list negative offset", http.MethodGet, "/incidents?offset=-1", "", http.StatusBadRequest},
		{"create", http.MethodPost, "/incidents", validCreate, http.StatusCreated},
		{"create invalid JSON", http.MethodPost, "/incidents", `{bad`, http.StatusBadRequest},
		{"create no entries", http.MethodPost, "/incidents", `{"name":"x","entries":[]}`, http.StatusBadRequest},
		{"create no name", http.MethodPost, "/incidents", `{"entries":[{"source_table":"a","source_id":"1"}]}`, http.StatusBadRequest},
		{"get missing", http.MethodGet, "/incidents/01H5K3ABCDEFGHJKMNPQRS", "", http.StatusNotFound},
		{"put not allowed", http.MethodPut, "/incidents", "", http.StatusMethodNotAllowed},
		{"delete not allowed", http.MethodDelete, "/incidents/1", "", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/alerts", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, r, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d (body %s)", tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestCreateThenGet(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/incidents", validCreate)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var created struct {
		Incident incident.Incident `json:"incident"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if created.Incident.ID == "" || created.Incident.EntryCount != 2 {
		t.Fatalf("created = %+v, want id and 2 entries", created.Incident)
	}

	rec = do(t, r, http.MethodGet, "/incidents/"+created.Incident.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	for _, key := range []string{"incident", "incidentData", "entries"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	var entries []incident.Entry
	if err := json.Unmarshal(raw["entries"], &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 2 || entries[1].Notes != "photo" {
		t.Errorf("entries = %+v", entries)
	}

	rec = do(t, r, http.MethodGet, "/incidents", "")
	var page incident.Page
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if page.Total != 1 || len(page.Incidents) != 1 || page.Limit != incident.DefaultLimit {
		t.Errorf("page = %+v", page)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(t), http.MethodGet, "/incidents", "")
	if !strings.Contains(rec.Body.String(), `"incidents":[]`) {
		t.Errorf("body = %s, want empty incidents array", rec.Body)
	}
}

func TestGetIncident_AnnotatesSpan(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	r := newTestRouter(t)
	rec := do(t, r, http.MethodPost, "/incidents", validCreate)
	var created struct {
		Incident incident.Incident `json:"incident"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}

	ctx, span := tp.Tracer("test").Start(context.Background(), "GET /incidents/{id}")
	req := httptest.NewRequest(http.MethodGet, "/incidents/"+created.Incident.ID, http.NoBody).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	attrs := make(map[string]any)
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["waypoint.incident.id"] != created.Incident.ID {
		t.Errorf("waypoint.incident.id = %v, want %s", attrs["waypoint.incident.id"], created.Incident.ID)
	}
	if attrs["waypoint.incident.entries"] != int64(2) {
		t.Errorf("waypoint.incident.entries = %v, want 2", attrs["waypoint.incident.entries"])
	}
}

type failingService struct{}

func (failingService) Create(context.Context, incident.CreateRequest) (*incident.Incident, error) {
	return nil, errors.New("db down")
}

func (failingService) Get(context.Context, string) (*incident.Detail, bool, error) {
	return nil, false, errors.New("db down")
}

func (failingService) List(context.Context, int, int) (*incident.Page, error) {
	return nil, errors.New("db down")
}

func TestInternalErrors(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	New(nil, failingService{}).RegisterRoutes(r)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/incidents", ""},
		{http.MethodGet, "/incidents/x", ""},
		{http.MethodPost, "/incidents", validCreate},
	} {
		rec := do(t, r, tc.method, tc.path, tc.body)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s %s = %d, want 500", tc.method, tc.path, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "db down") {
			t.Errorf("%s %s leaked internal error: %s", tc.method, tc.path, rec.Body)
		}
	}
}

// Fuzz

func FuzzCreateIncident(f *testing.F) {
	svc := incident.NewService(memstore.New(), nil, nil, incident.Hooks{})
	r := chi.NewRouter()
	New(nil, svc).RegisterRoutes(r)

	seeds := [][]byte{
		nil,
		[]byte("{}"),
		[]byte(validCreate),
		[]byte(`{"name":"  ","entries":[{"source_table":"","source_id":"1"}]}`),
		[]byte("{invalid json"),
		[]byte("\x00\x01\x02\xff\xfe"),
		[]byte(strings.Repeat("a", 10000)),
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, body []byte) {
		req := httptest.NewRequest(http.MethodPost, "/incidents", strings.NewReader(string(body)))
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated && rec.Code != http.StatusBadRequest {
			t.Errorf("POST /incidents with body len=%d = %d, want 201 or 400", len(body), rec.Code)
		}
	})
}
