// Package repo implements the student Record Store on top of GORM.
//
// The store is the single source of truth for student records. SQLite
// serializes writers; concurrent updates to the same record are
// last-writer-wins.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"student-records-api/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("student not found")

// StudentStore is the Record Store contract consumed by the service layer.
type StudentStore interface {
	Insert(ctx context.Context, s models.Student) (models.Student, error)
	Get(ctx context.Context, id uint) (models.Student, error)
	List(ctx context.Context, offset, limit int) ([]models.Student, error)
	Update(ctx context.Context, id uint, patch models.StudentPatch) (models.Student, error)
	Delete(ctx context.Context, id uint) error
	DeleteMany(ctx context.Context, ids []uint) (int64, error)
	ListByFaculty(ctx context.Context, faculty string) ([]models.Student, error)
	DistinctCourses(ctx context.Context) ([]string, error)
	AverageGrade(ctx context.Context, faculty string) (float64, error)
	ImportCSV(ctx context.Context, path string) (int, error)
	Count(ctx context.Context) (int64, error)
}

// Students is the GORM-backed StudentStore.
type Students struct {
	db *gorm.DB
}

// NewStudents returns a StudentStore over db.
func NewStudents(db *gorm.DB) *Students {
	return &Students{db: db}
}

// Insert creates a record; the returned copy carries the assigned id.
func (r *Students) Insert(ctx context.Context, s models.Student) (models.Student, error) {
	s.ID = 0
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return models.Student{}, fmt.Errorf("repo: insert student: %w", err)
	}
	return s, nil
}

// Get fetches a record by id, or ErrNotFound.
func (r *Students) Get(ctx context.Context, id uint) (models.Student, error) {
	var s models.Student
	err := r.db.WithContext(ctx).First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Student{}, ErrNotFound
	}
	if err != nil {
		return models.Student{}, fmt.Errorf("repo: get student %d: %w", id, err)
	}
	return s, nil
}

// List returns a page of records ordered by id. A negative offset is treated
// as zero; a limit <= 0 returns an empty page.
func (r *Students) List(ctx context.Context, offset, limit int) ([]models.Student, error) {
	out := []models.Student{}
	if limit <= 0 {
		return out, nil
	}
	if offset < 0 {
		offset = 0
	}
	err := r.db.WithContext(ctx).Order("id asc").Offset(offset).Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("repo: list students: %w", err)
	}
	return out, nil
}

// Update applies the supplied fields only and returns the updated record.
// The write is issued before the read so the transaction takes the write
// lock up front.
func (r *Students) Update(ctx context.Context, id uint, patch models.StudentPatch) (models.Student, error) {
	cols := patch.Columns()
	if len(cols) == 0 {
		return r.Get(ctx, id)
	}

	var out models.Student
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Student{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&out, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Student{}, ErrNotFound
	}
	if err != nil {
		return models.Student{}, fmt.Errorf("repo: update student %d: %w", id, err)
	}
	return out, nil
}

// Delete removes one record, or returns ErrNotFound.
func (r *Students) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Student{}, id)
	if res.Error != nil {
		return fmt.Errorf("repo: delete student %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMany removes every record whose id is listed and reports how many
// existed. Unknown ids are ignored.
func (r *Students) DeleteMany(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Student{})
	if res.Error != nil {
		return 0, fmt.Errorf("repo: delete students: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListByFaculty returns every record of one faculty ordered by id.
func (r *Students) ListByFaculty(ctx context.Context, faculty string) ([]models.Student, error) {
	out := []models.Student{}
	err := r.db.WithContext(ctx).Where("faculty = ?", faculty).Order("id asc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("repo: list faculty %q: %w", faculty, err)
	}
	return out, nil
}

// DistinctCourses returns the set of course values, sorted.
func (r *Students) DistinctCourses(ctx context.Context) ([]string, error) {
	out := []string{}
	err := r.db.WithContext(ctx).Model(&models.Student{}).
		Distinct().Order("course asc").Pluck("course", &out).Error
	if err != nil {
		return nil, fmt.Errorf("repo: distinct courses: %w", err)
	}
	return out, nil
}

// AverageGrade returns the faculty's mean grade rounded to two decimals,
// or 0.0 when the faculty has no records.
func (r *Students) AverageGrade(ctx context.Context, faculty string) (float64, error) {
	var avg sql.NullFloat64
	err := r.db.WithContext(ctx).Model(&models.Student{}).
		Select("AVG(grade)").Where("faculty = ?", faculty).Row().Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("repo: average grade %q: %w", faculty, err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return math.Round(avg.Float64*100) / 100, nil
}

// Count returns the total number of records.
func (r *Students) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Student{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("repo: count students: %w", err)
	}
	return n, nil
}

var _ StudentStore = (*Students)(nil)
