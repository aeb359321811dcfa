package archive

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewBuildsArchiverWithDefaultCapacityThreshold(t *testing.T) {
	bucket := BucketConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "reports"}
	a := New(bucket, nil, logrus.New())
	if a == nil {
		t.Fatal("New returned nil")
	}
	if a.bucket != bucket {
		t.Error("bucket config not stored correctly")
	}
	if a.capacityThreshold != defaultCapacityThreshold {
		t.Errorf("expected default capacity threshold %.1f, got %.1f", defaultCapacityThreshold, a.capacityThreshold)
	}
	if a.cold != nil {
		t.Error("cold tier should be nil when not configured")
	}
}

func TestNewWithColdTierConfig(t *testing.T) {
	cold := &ColdTierConfig{Vault: "reports-vault", Region: "us-east-1"}
	a := New(BucketConfig{}, cold, logrus.New())
	if a.cold != cold {
		t.Error("cold tier config not stored correctly")
	}
}
