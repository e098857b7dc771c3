package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/simple-job-pool/pkg/core"
)

// ArchivedJob is the persisted form of a terminal job.
type ArchivedJob struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement:false"`
	Name         string     `gorm:"size:255;not null"`
	Status       string     `gorm:"index;size:20;not null"`
	RetryCount   int        `gorm:"default:0"`
	MaxRetries   int        `gorm:"default:0"`
	CreatedAt    time.Time  `gorm:"autoCreateTime:false"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
	FinishedAt   *time.Time `gorm:"index"`
	FailedReason *string    `gorm:"type:text"`
	ArchivedAt   time.Time  `gorm:"index;not null"`
}

// TableName implements gorm's tabler interface.
func (ArchivedJob) TableName() string {
	return "archived_jobs"
}

func toArchived(j core.Job, at time.Time) ArchivedJob {
	c := j.Clone()
	return ArchivedJob{
		ID:           c.ID,
		Name:         c.Name,
		Status:       string(c.Status),
		RetryCount:   c.RetryCount,
		MaxRetries:   c.MaxRetries,
		CreatedAt:    c.CreatedAt,
		StartedAt:    c.StartedAt,
		CompletedAt:  c.CompletedAt,
		FinishedAt:   c.FinishedAt,
		FailedReason: c.FailedReason,
		ArchivedAt:   at,
	}
}

func (a ArchivedJob) toJob() core.Job {
	return core.Job{
		ID:           a.ID,
		Name:         a.Name,
		Status:       core.JobStatus(a.Status),
		RetryCount:   a.RetryCount,
		MaxRetries:   a.MaxRetries,
		CreatedAt:    a.CreatedAt,
		StartedAt:    a.StartedAt,
		CompletedAt:  a.CompletedAt,
		FinishedAt:   a.FinishedAt,
		FailedReason: a.FailedReason,
	}
}

// GormArchive implements core.Archive using GORM.
type GormArchive struct {
	db        *gorm.DB
	batchSize int
}

// NewGormArchive creates a new GORM-backed archive.
func NewGormArchive(db *gorm.DB) *GormArchive {
	return &GormArchive{db: db, batchSize: 100}
}

// DB returns the underlying database handle.
func (s *GormArchive) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormArchive) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ArchivedJob{})
}

// Archive stores terminal jobs, overwriting rows with the same id.
func (s *GormArchive) Archive(ctx context.Context, jobs []core.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]ArchivedJob, 0, len(jobs))
	for _, j := range jobs {
		if !j.Status.Terminal() {
			return fmt.Errorf("jobs: cannot archive job %d in status %s", j.ID, j.Status)
		}
		rows = append(rows, toArchived(j, now))
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&rows, s.batchSize).Error
}

// GetArchived returns an archived job or core.ErrJobNotFound.
func (s *GormArchive) GetArchived(ctx context.Context, id uint64) (core.Job, error) {
	var row ArchivedJob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.Job{}, core.ErrJobNotFound
		}
		return core.Job{}, err
	}
	return row.toJob(), nil
}

// Count returns the number of archived jobs, optionally filtered by status.
func (s *GormArchive) Count(ctx context.Context, status core.JobStatus) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&ArchivedJob{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	err := q.Count(&count).Error
	return count, err
}

// Prune deletes rows archived before the given time.
func (s *GormArchive) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("archived_at < ?", before.UTC()).
		Delete(&ArchivedJob{})
	return result.RowsAffected, result.Error
}
