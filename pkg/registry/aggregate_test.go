package registry

import (
	"context"
	"net/http"
	"testing"

	"github.com/detecktiv/registry-client/internal/testutil"
	"github.com/detecktiv/registry-client/pkg/client"
)

func setupFullCompany(mock *testutil.MockRegistry) {
	mock.SetResponse("/company/12345678", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"company_number":"12345678","company_name":"ACME LTD"}`,
	})
	mock.SetPagedItems("/company/12345678/officers", []map[string]any{
		{"name": "DOE, Jane", "links": map[string]any{
			"officer": map[string]any{"appointments": "/officers/off-1/appointments"},
		}},
		{"name": "ROE, Richard", "links": map[string]any{
			"officer": map[string]any{"appointments": "/officers/off-2/appointments"},
		}},
	})
	mock.SetPagedItems("/company/12345678/filing-history", []map[string]any{
		{"type": "AA"}, {"type": "CS01"},
	})
	for _, path := range []string{
		"/company/12345678/persons-with-significant-control/individual",
		"/company/12345678/persons-with-significant-control/corporate-entity",
		"/company/12345678/persons-with-significant-control/legal-person",
		"/company/12345678/persons-with-significant-control-statements",
		"/company/12345678/charges",
		"/company/12345678/uk-establishments",
	} {
		mock.SetPagedItems(path, nil)
	}
	mock.SetResponse("/company/12345678/insolvency", testutil.MockResponse{
		StatusCode: http.StatusOK, Body: `{"cases":[]}`,
	})
	mock.SetResponse("/company/12345678/exemptions", testutil.MockResponse{
		StatusCode: http.StatusOK, Body: `{"exemptions":{}}`,
	})
	mock.SetResponse("/company/12345678/registers", testutil.MockResponse{
		StatusCode: http.StatusOK, Body: `{"registers":{}}`,
	})
}

func TestCompanyFullAggregates(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()
	setupFullCompany(mock)

	svc := newTestService(t, mock.URL())
	full, err := svc.CompanyFull(context.Background(), "12345678", FullOptions{})
	if err != nil {
		t.Fatalf("CompanyFull() error: %v", err)
	}

	if full.Profile["company_name"] != "ACME LTD" {
		t.Errorf("profile = %v", full.Profile)
	}
	if !full.Officers.Available || len(full.Officers.Items) != 2 {
		t.Errorf("officers slot = %+v", full.Officers)
	}
	if !full.FilingHistory.Available || len(full.FilingHistory.Items) != 2 {
		t.Errorf("filing history slot = %+v", full.FilingHistory)
	}
	if !full.Insolvency.Available {
		t.Error("insolvency slot should be available")
	}
	if full.OfficerAppointments != nil {
		t.Error("enrichment must be opt-in")
	}
}

func TestCompanyFullSubResourceFailureIsIsolated(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()
	setupFullCompany(mock)
	// One slot permanently broken must not cost the caller the rest.
	mock.SetResponse("/company/12345678/charges", testutil.NewServerErrorResponse())

	svc := newTestService(t, mock.URL())
	full, err := svc.CompanyFull(context.Background(), "12345678", FullOptions{})
	if err != nil {
		t.Fatalf("CompanyFull() error: %v", err)
	}

	if full.Charges.Available {
		t.Error("charges slot should be marked unavailable")
	}
	if !full.Officers.Available {
		t.Error("officers slot should survive the charges failure")
	}
}

func TestCompanyFullProfileFailurePropagates(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()
	mock.SetResponse("/company/12345678", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":"company profile not found"}`,
	})

	svc := newTestService(t, mock.URL())
	_, err := svc.CompanyFull(context.Background(), "12345678", FullOptions{})
	if client.KindOf(err) != client.KindBadRequest {
		t.Fatalf("kind = %q, want %q", client.KindOf(err), client.KindBadRequest)
	}
	// The profile is the gate: no sub-resource fetches after it fails.
	if got := mock.RequestCount("/company/12345678/officers"); got != 0 {
		t.Errorf("officers requests = %d, want 0", got)
	}
}

func TestCompanyFullEnrichment(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()
	setupFullCompany(mock)
	mock.SetPagedItems("/officers/off-1/appointments", []map[string]any{
		{"appointed_to": map[string]any{"company_number": "12345678"}},
	})
	// off-2's appointments endpoint stays broken.
	mock.SetResponse("/officers/off-2/appointments", testutil.NewServerErrorResponse())

	svc := newTestService(t, mock.URL())
	full, err := svc.CompanyFull(context.Background(), "12345678", FullOptions{
		EnrichOfficerAppointments: true,
	})
	if err != nil {
		t.Fatalf("CompanyFull() error: %v", err)
	}

	if len(full.OfficerAppointments) != 2 {
		t.Fatalf("enriched officers = %d, want 2", len(full.OfficerAppointments))
	}
	if !full.OfficerAppointments["off-1"].Available {
		t.Error("off-1 appointments should be available")
	}
	if full.OfficerAppointments["off-2"].Available {
		t.Error("off-2 appointments should be marked unavailable, not dropped")
	}
}

func TestCompanyFullEnrichmentCapsOfficers(t *testing.T) {
	mock := testutil.NewMockRegistry()
	defer mock.Close()
	setupFullCompany(mock)

	officers := []map[string]any{
		{"links": map[string]any{"officer": map[string]any{"appointments": "/officers/a/appointments"}}},
		{"links": map[string]any{"officer": map[string]any{"appointments": "/officers/b/appointments"}}},
		// Duplicate of the first: must not count against the cap twice.
		{"links": map[string]any{"officer": map[string]any{"appointments": "/officers/a/appointments"}}},
		{"links": map[string]any{"officer": map[string]any{"appointments": "/officers/c/appointments"}}},
	}
	mock.SetPagedItems("/company/12345678/officers", officers)
	for _, id := range []string{"a", "b", "c"} {
		mock.SetPagedItems("/officers/"+id+"/appointments", nil)
	}

	svc := newTestService(t, mock.URL())
	full, err := svc.CompanyFull(context.Background(), "12345678", FullOptions{
		EnrichOfficerAppointments: true,
		MaxOfficersForEnrichment:  2,
	})
	if err != nil {
		t.Fatalf("CompanyFull() error: %v", err)
	}

	if len(full.OfficerAppointments) != 2 {
		t.Errorf("enriched officers = %d, want cap of 2", len(full.OfficerAppointments))
	}
	if _, ok := full.OfficerAppointments["a"]; !ok {
		t.Error("first unique officer missing from enrichment")
	}
	if _, ok := full.OfficerAppointments["b"]; !ok {
		t.Error("second unique officer missing from enrichment")
	}
	if got := mock.RequestCount("/officers/c/appointments"); got != 0 {
		t.Errorf("officer past the cap was fetched %d times", got)
	}
}

func TestExtractOfficerID(t *testing.T) {
	tests := []struct {
		name   string
		item   map[string]any
		wantID string
		wantOK bool
	}{
		{
			"direct field wins",
			map[string]any{
				"officer_id": "direct-id",
				"links": map[string]any{
					"officer": map[string]any{"appointments": "/officers/link-id/appointments"},
				},
			},
			"direct-id", true,
		},
		{
			"appointments link",
			map[string]any{
				"links": map[string]any{
					"officer": map[string]any{"appointments": "/officers/link-id/appointments"},
				},
			},
			"link-id", true,
		},
		{
			"self link fallback",
			map[string]any{
				"links": map[string]any{"self": "/officers/self-id"},
			},
			"self-id", true,
		},
		{
			"appointments link preferred over self",
			map[string]any{
				"links": map[string]any{
					"officer": map[string]any{"appointments": "/officers/appt-id/appointments"},
					"self":    "/officers/self-id",
				},
			},
			"appt-id", true,
		},
		{"no links", map[string]any{"name": "DOE, Jane"}, "", false},
		{
			"unusable links",
			map[string]any{"links": map[string]any{"self": "/company/12345678"}},
			"", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := extractOfficerID(tt.item)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("extractOfficerID() = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestOfficerIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/officers/abc123/appointments", "abc123"},
		{"/officers/abc123", "abc123"},
		{"officers/abc123/", "abc123"},
		{"/company/12345678/officers", ""},
		{"/officers", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := officerIDFromPath(tt.path); got != tt.want {
			t.Errorf("officerIDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
