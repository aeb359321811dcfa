package pdnsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pdns-migrate/internal/migerr"
	"pdns-migrate/internal/zonemodel"
)

func testConn(url string) zonemodel.Connection {
	return zonemodel.Connection{
		BaseURL:      url,
		APIKey:       "secret",
		Timeout:      2 * time.Second,
		Retries:      3,
		RetryBackoff: time.Millisecond,
		RetryMaxWait: 10 * time.Millisecond,
	}
}

func TestGetZoneSendsAPIKeyAndDecodesBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/localhost/zones/example.com.", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			t.Fatalf("missing or wrong API key header")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(zonemodel.Zone{Name: "example.com.", Kind: "Native"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(testConn(srv.URL), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	zone, err := c.GetZone(context.Background(), "example.com.")
	if err != nil {
		t.Fatalf("GetZone: %v", err)
	}
	if zone.Name != "example.com." {
		t.Errorf("unexpected zone: %+v", zone)
	}
}

func TestGetZoneNotFoundTranslatesToNotFoundError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/localhost/zones/missing.com.", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such zone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(testConn(srv.URL), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, err = c.GetZone(context.Background(), "missing.com.")
	if migerr.Kind(err) != "NotFoundError" {
		t.Fatalf("expected NotFoundError, got %s (%v)", migerr.Kind(err), err)
	}
}

func TestZoneExistsReturnsFalseWithoutErrorOn404(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/localhost/zones/missing.com.", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(testConn(srv.URL), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	exists, err := c.ZoneExists(context.Background(), "missing.com.")
	if err != nil {
		t.Fatalf("ZoneExists should not surface a 404 as an error: %v", err)
	}
	if exists {
		t.Error("expected exists=false")
	}
}

func TestGetZoneRetriesOnTransientStatusThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/localhost/zones/flaky.com.", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(zonemodel.Zone{Name: "flaky.com."})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(testConn(srv.URL), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	zone, err := c.GetZone(context.Background(), "flaky.com.")
	if err != nil {
		t.Fatalf("GetZone: %v", err)
	}
	if zone.Name != "flaky.com." {
		t.Errorf("unexpected zone after retry: %+v", zone)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected exactly 3 attempts (2 failures + success), got %d", got)
	}
}

func TestGetZoneCancelledDuringBackoffReturnsCancelledError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/localhost/zones/slow.com.", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := testConn(srv.URL)
	conn.RetryBackoff = 50 * time.Millisecond
	conn.RetryMaxWait = 50 * time.Millisecond
	c, err := New(conn, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = c.GetZone(ctx, "slow.com.")
	if err == nil {
		t.Fatal("expected an error once the context is cancelled mid-backoff")
	}
	if migerr.Kind(err) != "CancelledError" {
		t.Fatalf("expected CancelledError once the context deadline passes, got %s (%v)", migerr.Kind(err), err)
	}
}

func TestCreateZonePostsToZonesCollection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/localhost/zones", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		var z zonemodel.Zone
		json.NewDecoder(r.Body).Decode(&z)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(z)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(testConn(srv.URL), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	created, err := c.CreateZone(context.Background(), zonemodel.Zone{Name: "new.com."})
	if err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	if created.Name != "new.com." {
		t.Errorf("unexpected created zone: %+v", created)
	}
}

func TestPatchRRSetsSendsPatchWithChanges(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/servers/localhost/zones/example.com.", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Fatalf("expected PATCH, got %s", r.Method)
		}
		var body struct {
			RRSets []zonemodel.Change `json:"rrsets"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.RRSets) != 1 || body.RRSets[0].Name != "www.example.com." {
			t.Fatalf("unexpected patch body: %+v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(testConn(srv.URL), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	changes := []zonemodel.Change{{ChangeType: zonemodel.ChangeReplace, Name: "www.example.com.", Type: "A"}}
	if err := c.PatchRRSets(context.Background(), "example.com.", changes); err != nil {
		t.Fatalf("PatchRRSets: %v", err)
	}
}
