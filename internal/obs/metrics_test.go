package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                          "/",
		"/metrics":                                  "/metrics",
		"/v1/vehicles/42":                           "/v1/vehicles/:id",
		"/v1/vehicles/42/documents":                 "/v1/vehicles/:id/documents",
		"/v1/drivers/7/hours?limit=10":              "/v1/drivers/:id/hours",
		"/v1/modules/permissions/roles/COORDINADOR": "/v1/modules/permissions/roles/:role",
		"/v1/assignments":                           "/v1/assignments",
		"/v1/vehicles/abc":                          "/v1/vehicles/abc",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentPassesStatusThrough(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/vehicles/3", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	SetReady(true)
	SetReady(false)
}
