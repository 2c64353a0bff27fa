package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/waypoint/internal/incident"
)

func testIncident() *incident.Incident {
	return &incident.Incident{
		ID: "01JN123",
		Metadata: incident.Metadata{
			Name:              "Logging road on the river bank",
			Description:       "New road cut visible in three alerts.",
			IncidentType:      "Deforestation",
			ResponsibleParty:  "unknown",
			ImpactDescription: "Road reaches the community boundary.",
		},
		EntryCount: 3,
		CreatedAt:  time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

func TestIncidentCreated_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := New(srv.URL).IncidentCreated(context.Background(), testIncident()); err != nil {
		t.Fatalf("IncidentCreated: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, fields, divider, description, divider, context = 6 blocks
	if len(blocks) != 6 {
		t.Errorf("blocks count = %d, want 6", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Logging road on the river bank") {
		t.Errorf("header text = %q, want to contain incident name", headerText)
	}
	if !strings.Contains(headerText, "\U0001f332") {
		t.Errorf("header should contain tree for deforestation")
	}

	ctxText := blocks[5].(map[string]any)["elements"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.Contains(ctxText, "01JN123") || !strings.Contains(ctxText, "2026-02-26 14:23 UTC") {
		t.Errorf("context text = %q", ctxText)
	}
}

func TestIncidentCreated_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	if err := New("").IncidentCreated(context.Background(), &incident.Incident{}); err != nil {
		t.Fatalf("IncidentCreated with empty URL should be no-op, got: %v", err)
	}
}

func TestBuildMessage_OmitsEmptyDescription(t *testing.T) {
	t.Parallel()

	inc := testIncident()
	inc.Description = ""
	inc.ImpactDescription = ""

	blocks := buildMessage(inc)["blocks"].([]map[string]any)
	// header, fields, divider, context
	if len(blocks) != 4 {
		t.Errorf("blocks count = %d, want 4", len(blocks))
	}
}

func TestBuildMessage_TruncatesLongDescription(t *testing.T) {
	t.Parallel()

	inc := testIncident()
	inc.Description = strings.Repeat("x", 4000)

	blocks := buildMessage(inc)["blocks"].([]map[string]any)
	text := blocks[3]["text"].(map[string]any)["text"].(string)
	if len(text) > maxDescriptionLen {
		t.Errorf("description length = %d, expected <= %d", len(text), maxDescriptionLen)
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated description to end with ...")
	}
}

func TestTypeEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  string
		want string
	}{
		{"deforestation", "\U0001f332"},
		{"Fire", "\U0001f525"},
		{" flooding ", "\U0001f30a"},
		{"mining-illegal", "\u26cf\ufe0f"},
		{"", "\U0001f4cd"},
		{"other", "\U0001f4cd"},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			t.Parallel()
			if got := typeEmoji(tt.typ); got != tt.want {
				t.Errorf("typeEmoji(%q) = %q, want %q", tt.typ, got, tt.want)
			}
		})
	}
}

func TestIncidentCreated_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	err := New(srv.URL).IncidentCreated(context.Background(), testIncident())
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("Logging road", "deforestation", "Road cut.", "ranger team")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "fire", "*bold* _italic_ ~strike~", "x")
	f.Add("name\x00\x01\x02", "type\nline", "desc\ttab", "p\x00rty")
	f.Add(strings.Repeat("A", 5000), "mining", strings.Repeat("x", 10000), "")

	f.Fuzz(func(t *testing.T, name, typ, description, party string) {
		inc := &incident.Incident{
			ID: "fuzz-id",
			Metadata: incident.Metadata{
				Name:             name,
				IncidentType:     typ,
				Description:      description,
				ResponsibleParty: party,
			},
			EntryCount: 1,
			CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		// Must not panic
		msg := buildMessage(inc)

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage JSON does not round-trip: %v", err)
		}
		if _, ok := decoded["blocks"].([]any); !ok {
			t.Fatal("expected blocks array")
		}
	})
}
