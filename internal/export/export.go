// Package export builds a JSON snapshot of everything a user owns and, when
// object storage is configured, parks it in a bucket behind a presigned link.
package export

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/repository"
	"github.com/zfogg/daybook/internal/storage"
	"github.com/zfogg/daybook/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LinkTTL is how long a presigned export link stays valid
const LinkTTL = 24 * time.Hour

// FormatVersion is bumped whenever the snapshot layout changes
const FormatVersion = 1

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot is the exported data
type Snapshot struct {
	Version        int                    `json:"version"`
	ExportedAt     time.Time              `json:"exported_at"`
	User           *models.User           `json:"user"`
	ProgressItems  []models.ProgressItem  `json:"progress_items"`
	Commitments    []models.Commitment    `json:"commitments"`
	CommitmentLogs []models.CommitmentLog `json:"commitment_logs"`
	TimelineEvents []models.TimelineEvent `json:"timeline_events"`
}

// Result is either a download link or the snapshot itself
type Result struct {
	Destination string     `json:"destination"`
	Key         string     `json:"key,omitempty"`
	URL         string     `json:"url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Size        int64      `json:"size"`
	Snapshot    *Snapshot  `json:"snapshot,omitempty"`
}

// Service produces exports
type Service struct {
	items       repository.ProgressRepository
	commitments repository.CommitmentRepository
	events      repository.TimelineRepository
	uploader    storage.ObjectUploader
	now         func() time.Time
}

// NewService creates an export service. uploader may be nil for inline exports;
// pass an untyped nil rather than a nil *storage.S3Exporter.
func NewService(db *gorm.DB, uploader storage.ObjectUploader) *Service {
	return &Service{
		items:       repository.NewProgressRepository(db),
		commitments: repository.NewCommitmentRepository(db),
		events:      repository.NewTimelineRepository(db),
		uploader:    uploader,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Build collects the user's data
func (s *Service) Build(ctx context.Context, user *models.User) (*Snapshot, error) {
	items, err := s.items.ListAll(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress items: %w", err)
	}
	cs, err := s.commitments.List(ctx, user.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitments: %w", err)
	}
	logs, err := s.commitments.ListAllLogs(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitment logs: %w", err)
	}
	evs, err := s.events.ListAll(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline events: %w", err)
	}

	return &Snapshot{
		Version:        FormatVersion,
		ExportedAt:     s.now(),
		User:           user,
		ProgressItems:  items,
		Commitments:    cs,
		CommitmentLogs: logs,
		TimelineEvents: evs,
	}, nil
}

// Export builds the snapshot and uploads it when storage is configured. An
// upload failure degrades to the inline snapshot.
func (s *Service) Export(ctx context.Context, user *models.User) (res *Result, err error) {
	ctx, span := telemetry.Start(ctx, "export.run", attribute.String("user.id", user.ID))
	defer func() {
		if res != nil {
			span.SetAttributes(
				attribute.String("export.destination", res.Destination),
				attribute.Int64("export.size", res.Size),
			)
		}
		telemetry.End(span, err)
	}()

	snap, err := s.Build(ctx, user)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	if s.uploader != nil {
		up, upErr := s.upload(ctx, user.ID, snap.ExportedAt, payload)
		if upErr == nil {
			metrics.App().ExportsTotal.WithLabelValues("s3").Inc()
			logger.Log.Info("Export uploaded",
				logger.WithUserID(user.ID),
				zap.String("key", up.Key),
				zap.Int64("size", up.Size),
			)
			return up, nil
		}
		logger.Log.Warn("Export upload failed, returning inline snapshot",
			logger.WithUserID(user.ID),
			zap.Error(upErr),
		)
	}

	metrics.App().ExportsTotal.WithLabelValues("inline").Inc()
	return &Result{
		Destination: "inline",
		Size:        int64(len(payload)),
		Snapshot:    snap,
	}, nil
}

func (s *Service) upload(ctx context.Context, userID string, at time.Time, payload []byte) (*Result, error) {
	key := Key(userID, at)
	up, err := s.uploader.Upload(ctx, key, "application/json", payload, map[string]string{
		"user-id":     userID,
		"exported-at": at.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	url, err := s.uploader.PresignGet(ctx, key, LinkTTL)
	if err != nil {
		return nil, err
	}
	expires := at.Add(LinkTTL)
	return &Result{
		Destination: "s3",
		Key:         up.Key,
		URL:         url,
		ExpiresAt:   &expires,
		Size:        up.Size,
	}, nil
}

// Key is the object key of an export taken at t
func Key(userID string, t time.Time) string {
	return fmt.Sprintf("exports/%s/%s.json", userID, t.UTC().Format("20060102T150405Z"))
}
