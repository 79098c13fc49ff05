package psql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type JobRecord struct {
	ID         string `gorm:"primaryKey;type:uuid"`
	Kind       string `gorm:"not null;index"`
	JobKey     string `gorm:"index"`
	Status     string `gorm:"not null;type:text"`
	Params     datatypes.JSON
	Result     datatypes.JSON
	ResultKey  string
	Warnings   datatypes.JSON
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

func (JobRecord) TableName() string { return "analysis_jobs" }

type GormJobRepo struct {
	db *gorm.DB
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

// SaveJob upserts the whole record. The engine owns the lifecycle; the
// database is an audit trail, not a coordination point.
func (r *GormJobRepo) SaveJob(ctx context.Context, job *entity.AnalysisJob) error {
	rec, err := toRecord(job)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

func (r *GormJobRepo) GetJob(ctx context.Context, jobID string) (*entity.AnalysisJob, error) {
	var rec JobRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrJobNotFound
		}
		return nil, err
	}
	return fromRecord(&rec)
}

func toRecord(job *entity.AnalysisJob) (*JobRecord, error) {
	rec := &JobRecord{
		ID:         job.ID,
		Kind:       string(job.Kind),
		JobKey:     job.JobKey,
		Status:     string(job.Status),
		Params:     datatypes.JSON(job.Params),
		Result:     datatypes.JSON(job.Result),
		ResultKey:  job.ResultKey,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	if len(job.Warnings) > 0 {
		w, err := json.Marshal(job.Warnings)
		if err != nil {
			return nil, fmt.Errorf("encode warnings: %w", err)
		}
		rec.Warnings = w
	}
	return rec, nil
}

func fromRecord(rec *JobRecord) (*entity.AnalysisJob, error) {
	job := &entity.AnalysisJob{
		ID:         rec.ID,
		Kind:       entity.JobKind(rec.Kind),
		JobKey:     rec.JobKey,
		Status:     entity.JobStatus(rec.Status),
		Params:     json.RawMessage(rec.Params),
		Result:     json.RawMessage(rec.Result),
		ResultKey:  rec.ResultKey,
		Error:      rec.Error,
		CreatedAt:  rec.CreatedAt,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	if len(rec.Warnings) > 0 {
		if err := json.Unmarshal(rec.Warnings, &job.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}
	return job, nil
}
