// Package archive is the optional Report Archiver: it uploads a batch
// run's aggregated report to an S3-compatible bucket and, when a Glacier
// vault is configured, sweeps aged reports into cold storage. Nothing in
// internal/batch or internal/migrator depends on
// this package; a report that fails to archive never fails the run.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/cenkalti/backoff/v4"
	"github.com/minio/madmin-go/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"pdns-migrate/internal/migerr"
)

const defaultCapacityThreshold = 95.0

// BucketConfig describes the Minio-compatible bucket reports are
// uploaded to.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ColdTierConfig describes the optional Glacier vault aged reports move
// into.
type ColdTierConfig struct {
	Vault     string
	AccountID string
	Region    string
	ColdAfter time.Duration
}

// Archiver uploads batch reports and, optionally, sweeps them into a
// Glacier cold tier once they age past ColdTier.ColdAfter.
type Archiver struct {
	bucket BucketConfig
	cold   *ColdTierConfig

	capacityThreshold float64

	log *logrus.Logger

	minioClient *minio.Client
	adminClient *madmin.AdminClient
	glacier     *glacier.Client
}

// New builds an Archiver. cold may be nil to disable the Glacier sweep.
func New(bucket BucketConfig, cold *ColdTierConfig, log *logrus.Logger) *Archiver {
	return &Archiver{
		bucket:            bucket,
		cold:              cold,
		capacityThreshold: defaultCapacityThreshold,
		log:               log,
	}
}

func (a *Archiver) initMinio() error {
	if a.minioClient != nil {
		return nil
	}
	client, err := minio.New(a.bucket.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(a.bucket.AccessKey, a.bucket.SecretKey, ""),
		Secure: a.bucket.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create archive bucket client: %w", err)
	}
	a.minioClient = client
	return nil
}

func (a *Archiver) initAdmin() error {
	if a.adminClient != nil {
		return nil
	}
	client, err := madmin.New(a.bucket.Endpoint, a.bucket.AccessKey, a.bucket.SecretKey, a.bucket.UseSSL)
	if err != nil {
		return fmt.Errorf("failed to create archive bucket admin client: %w", err)
	}
	a.adminClient = client
	return nil
}

// ensureCapacity refuses to archive rather than silently dropping the
// report when the bucket's cluster usage is over threshold.
func (a *Archiver) ensureCapacity(ctx context.Context) error {
	if err := a.initAdmin(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	info, err := a.adminClient.StorageInfo(ctx)
	if err != nil {
		return migerr.NewConfigError("archive-bucket", fmt.Sprintf("failed to query storage info: %v", err))
	}
	var total, used uint64
	for _, disk := range info.Disks {
		total += disk.TotalSpace
		used += disk.UsedSpace
	}
	if total == 0 {
		return migerr.NewConfigError("archive-bucket", "storage backend reported zero total capacity")
	}
	usage := (float64(used) / float64(total)) * 100
	if usage >= a.capacityThreshold {
		return migerr.NewConfigError("archive-bucket", fmt.Sprintf("usage %.1f%% exceeds %.1f%% threshold", usage, a.capacityThreshold))
	}
	return nil
}

// UploadReport encodes report as indented JSON and uploads it to
// reports/{runID}.json, retrying transient failures with exponential
// backoff. It never mutates or depends on the batch report's contents
// beyond marshaling them.
func (a *Archiver) UploadReport(ctx context.Context, runID string, report any) error {
	if err := a.initMinio(); err != nil {
		return err
	}
	if err := a.ensureCapacity(ctx); err != nil {
		return err
	}

	content, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	objectName := fmt.Sprintf("reports/%s.json", runID)

	upload := func() error {
		_, err := a.minioClient.PutObject(ctx, a.bucket.Bucket, objectName,
			bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
				ContentType: "application/json",
			})
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(upload, policy); err != nil {
		return fmt.Errorf("failed to upload report %s: %w", objectName, err)
	}

	a.log.WithFields(logrus.Fields{"run_id": runID, "object": objectName, "bytes": len(content)}).Info("archived batch report")
	return nil
}

// reportInfo is the subset of object metadata the cold-tier sweep needs.
type reportInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// SweepToGlacier moves reports older than the configured ColdAfter from
// the bucket into the Glacier vault, deleting the hot copy only once
// Glacier confirms the archive upload. It is a best-effort background
// operation: a failure partway through leaves already-migrated reports
// migrated and logs the remainder as warnings, it never aborts a
// migration run.
func (a *Archiver) SweepToGlacier(ctx context.Context) error {
	if a.cold == nil {
		return nil
	}
	if err := a.initMinio(); err != nil {
		return err
	}

	reports, err := a.listReports(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-a.cold.ColdAfter)
	var aged []reportInfo
	for _, r := range reports {
		if r.LastModified.Before(cutoff) {
			aged = append(aged, r)
		}
	}
	if len(aged) == 0 {
		return nil
	}

	if a.glacier == nil {
		client, err := newGlacierClient(ctx, a.cold.Region)
		if err != nil {
			return err
		}
		a.glacier = client
	}

	accountID := a.cold.AccountID
	if accountID == "" {
		accountID = "-"
	}

	for _, r := range aged {
		if err := a.moveToGlacier(ctx, r, accountID); err != nil {
			a.log.WithFields(logrus.Fields{"object": r.Key, "error": err.Error()}).Warn("failed to move aged report to glacier")
			continue
		}
		a.log.WithFields(logrus.Fields{"object": r.Key}).Info("moved aged report to glacier cold tier")
	}
	return nil
}

func (a *Archiver) moveToGlacier(ctx context.Context, r reportInfo, accountID string) error {
	object, err := a.minioClient.GetObject(ctx, a.bucket.Bucket, r.Key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return err
	}

	_, err = a.glacier.UploadArchive(ctx, &glacier.UploadArchiveInput{
		AccountId:          aws.String(accountID),
		VaultName:          aws.String(a.cold.Vault),
		ArchiveDescription: aws.String(fmt.Sprintf("migration report: %s", r.Key)),
		Body:               bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("glacier upload failed: %w", err)
	}

	if err := a.minioClient.RemoveObject(ctx, a.bucket.Bucket, r.Key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("glacier upload succeeded but removing hot copy failed: %w", err)
	}
	return nil
}

func (a *Archiver) listReports(ctx context.Context) ([]reportInfo, error) {
	opts := minio.ListObjectsOptions{Prefix: "reports/", Recursive: true}
	var reports []reportInfo
	for obj := range a.minioClient.ListObjects(ctx, a.bucket.Bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("error listing archived reports: %w", obj.Err)
		}
		reports = append(reports, reportInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].LastModified.Before(reports[j].LastModified)
	})
	return reports, nil
}
