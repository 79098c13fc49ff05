package psql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type SampleRecord struct {
	SensorID string    `gorm:"not null;index:idx_samples_sensor_ts,priority:1"`
	Ts       time.Time `gorm:"not null;index:idx_samples_sensor_ts,priority:2"`
	Value    float64   `gorm:"not null"`
	Quality  string    `gorm:"not null;type:text"`
}

func (SampleRecord) TableName() string { return "sensor_samples" }

type SensorRecord struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Unit        string
	Kind        string `gorm:"not null;type:text"`
	ReadOnly    bool
	Provider    string
	DerivedFrom datatypes.JSON
}

func (SensorRecord) TableName() string { return "sensors" }

type GormSampleRepo struct {
	db *gorm.DB
}

func NewGormSampleRepo(db *gorm.DB) *GormSampleRepo {
	return &GormSampleRepo{db: db}
}

// ReadSamples returns raw samples grouped per sensor, ordered by timestamp.
// The range is half-open: start inclusive, end exclusive.
func (r *GormSampleRepo) ReadSamples(ctx context.Context, sensorIDs []string, start, end time.Time) (map[string][]entity.RawSample, error) {
	var recs []SampleRecord
	err := r.db.WithContext(ctx).
		Where("sensor_id IN ? AND ts >= ? AND ts < ?", sensorIDs, start, end).
		Order("sensor_id, ts").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	out := make(map[string][]entity.RawSample, len(sensorIDs))
	for _, rec := range recs {
		out[rec.SensorID] = append(out[rec.SensorID], entity.RawSample{
			SensorID: rec.SensorID,
			Ts:       rec.Ts,
			Value:    rec.Value,
			Quality:  entity.Quality(rec.Quality),
		})
	}
	return out, nil
}

func (r *GormSampleRepo) ListSensors(ctx context.Context) ([]entity.Sensor, error) {
	var recs []SensorRecord
	if err := r.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}

	sensors := make([]entity.Sensor, 0, len(recs))
	for _, rec := range recs {
		s := entity.Sensor{
			ID:       rec.ID,
			Name:     rec.Name,
			Unit:     rec.Unit,
			Kind:     entity.SensorKind(rec.Kind),
			ReadOnly: rec.ReadOnly,
			Provider: rec.Provider,
		}
		if len(rec.DerivedFrom) > 0 {
			if err := json.Unmarshal(rec.DerivedFrom, &s.DerivedFrom); err != nil {
				return nil, fmt.Errorf("sensor %s: decode derived_from: %w", rec.ID, err)
			}
		}
		sensors = append(sensors, s)
	}
	return sensors, nil
}
