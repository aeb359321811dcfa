package zonemodel

import "testing"

func TestNormalizeZoneNameAppendsTrailingDot(t *testing.T) {
	if got := NormalizeZoneName("example.com"); got != "example.com." {
		t.Errorf("got %q, want %q", got, "example.com.")
	}
	if got := NormalizeZoneName("example.com."); got != "example.com." {
		t.Errorf("already-qualified name should be unchanged, got %q", got)
	}
	if got := NormalizeZoneName(""); got != "" {
		t.Errorf("empty name should stay empty, got %q", got)
	}
}

func TestRRSetKeyIsCaseInsensitive(t *testing.T) {
	a := RRSet{Name: "WWW.example.com.", Type: "a"}
	b := RRSet{Name: "www.EXAMPLE.com.", Type: "A"}
	if a.Key() != b.Key() {
		t.Errorf("keys should match regardless of case: %+v vs %+v", a.Key(), b.Key())
	}
}

func TestConnectionEndpointDefaultsServerID(t *testing.T) {
	c := Connection{BaseURL: "https://pdns.example.com/"}
	want := "https://pdns.example.com/api/v1/servers/localhost"
	if got := c.Endpoint(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConnectionEndpointHonorsExplicitServerID(t *testing.T) {
	c := Connection{BaseURL: "https://pdns.example.com", ServerID: "replica-1"}
	want := "https://pdns.example.com/api/v1/servers/replica-1"
	if got := c.Endpoint(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMigrationResultSucceeded(t *testing.T) {
	ok := MigrationResult{Zone: "example.com."}
	if !ok.Succeeded() {
		t.Error("nil Err should mean success")
	}
	failed := MigrationResult{Zone: "example.com.", Err: &ValidationErrorStub{}}
	if failed.Succeeded() {
		t.Error("non-nil Err should mean failure")
	}
}

type ValidationErrorStub struct{}

func (*ValidationErrorStub) Error() string { return "stub" }
