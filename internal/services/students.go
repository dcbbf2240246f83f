// Package services composes the record store with the read-through cache.
// Reads go through the cache; writes mutate the store and then invalidate
// every namespace whose entries could have changed before returning.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"student-records-api/internal/cache"
	"student-records-api/internal/models"
	"student-records-api/internal/repo"
	"student-records-api/internal/tasks"
)

// Cache namespaces, one per cached endpoint.
const (
	NSStudents        = "students"
	NSStudent         = "student"
	NSFaculties       = "faculties"
	NSFacultyStudents = "faculty_students"
	NSUniqueCourses   = "unique_courses"
	NSFacultyAvgGrade = "faculty_avg_grade"
)

// derivedNamespaces hold aggregates over the whole table; any mutation may
// change them.
var derivedNamespaces = []string{
	NSStudents,
	NSFaculties,
	NSFacultyStudents,
	NSUniqueCourses,
	NSFacultyAvgGrade,
}

var (
	ErrEmptyIDList  = errors.New("no student ids provided")
	ErrFileNotFound = errors.New("file not found")
	ErrInvalidPath  = errors.New("file_path must name a regular file")
)

// Submitter hands work to the background task runner.
type Submitter interface {
	Submit(t tasks.Task) (string, error)
}

// StudentService serves student reads through the cache and keeps the cache
// coherent on writes.
type StudentService struct {
	store repo.StudentStore
	cache cache.Store
	tasks Submitter
	ttl   time.Duration
}

// NewStudentService wires the service. A ttl <= 0 uses cache.DefaultTTL.
func NewStudentService(store repo.StudentStore, c cache.Store, t Submitter, ttl time.Duration) *StudentService {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &StudentService{store: store, cache: c, tasks: t, ttl: ttl}
}

// StudentNamespace is the invalidation target of a single student entry.
func StudentNamespace(id uint) string {
	return cache.Namespace(NSStudent, cache.Params{"student_id": id})
}

// List returns a page of students.
func (s *StudentService) List(ctx context.Context, skip, limit int) ([]models.Student, error) {
	key := cache.Key(NSStudents, cache.Params{"skip": skip, "limit": limit})
	return cache.ReadThrough(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.Student, error) {
		return s.store.List(ctx, skip, limit)
	})
}

// Get returns one student or repo.ErrNotFound. Misses are not cached.
func (s *StudentService) Get(ctx context.Context, id uint) (models.Student, error) {
	key := cache.Key(NSStudent, cache.Params{"student_id": id})
	return cache.ReadThrough(ctx, s.cache, key, s.ttl, func(ctx context.Context) (models.Student, error) {
		return s.store.Get(ctx, id)
	})
}

// FacultyStudents lists the students of one faculty.
func (s *StudentService) FacultyStudents(ctx context.Context, faculty string) ([]models.Student, error) {
	key := cache.Key(NSFacultyStudents, cache.Params{"faculty": faculty})
	return cache.ReadThrough(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.Student, error) {
		return s.store.ListByFaculty(ctx, faculty)
	})
}

// Courses lists the distinct course names.
func (s *StudentService) Courses(ctx context.Context) ([]string, error) {
	key := cache.Key(NSUniqueCourses, nil)
	return cache.ReadThrough(ctx, s.cache, key, s.ttl, s.store.DistinctCourses)
}

// FacultyAverage returns the faculty's mean grade, 0.0 when it has no
// students.
func (s *StudentService) FacultyAverage(ctx context.Context, faculty string) (float64, error) {
	key := cache.Key(NSFacultyAvgGrade, cache.Params{"faculty": faculty})
	return cache.ReadThrough(ctx, s.cache, key, s.ttl, func(ctx context.Context) (float64, error) {
		return s.store.AverageGrade(ctx, faculty)
	})
}

// Create inserts a student.
func (s *StudentService) Create(ctx context.Context, st models.Student) (models.Student, error) {
	out, err := s.store.Insert(ctx, st)
	if err != nil {
		return models.Student{}, err
	}
	return out, s.invalidate(ctx, derivedNamespaces)
}

// Update applies a partial update.
func (s *StudentService) Update(ctx context.Context, id uint, patch models.StudentPatch) (models.Student, error) {
	out, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return models.Student{}, err
	}
	return out, s.invalidate(ctx, withStudents(derivedNamespaces, id))
}

// Delete removes one student.
func (s *StudentService) Delete(ctx context.Context, id uint) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, withStudents(derivedNamespaces, id))
}

// StartImport checks that path exists and queues a CSV import. The returned
// id identifies the task in completion events.
func (s *StudentService) StartImport(ctx context.Context, path string, userID uint) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrInvalidPath
	}
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrFileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("services: stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return "", ErrInvalidPath
	}

	return s.tasks.Submit(tasks.Task{
		Kind:   tasks.KindImport,
		UserID: userID,
		Run: func(ctx context.Context) (int64, error) {
			n, err := s.store.ImportCSV(ctx, path)
			return int64(n), err
		},
		Invalidate: derivedNamespaces,
	})
}

// StartBulkDelete queues removal of every listed id. Unknown ids are ignored
// by the task.
func (s *StudentService) StartBulkDelete(ctx context.Context, ids []uint, userID uint) (string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return "", ErrEmptyIDList
	}
	return s.tasks.Submit(tasks.Task{
		Kind:   tasks.KindBulkDelete,
		UserID: userID,
		Run: func(ctx context.Context) (int64, error) {
			return s.store.DeleteMany(ctx, ids)
		},
		Invalidate: withStudents(derivedNamespaces, ids...),
	})
}

func (s *StudentService) invalidate(ctx context.Context, prefixes []string) error {
	var errs []error
	for _, p := range prefixes {
		if _, err := s.cache.InvalidatePrefix(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", p, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("services: %w", errors.Join(errs...))
	}
	return nil
}

func withStudents(base []string, ids ...uint) []string {
	out := make([]string, 0, len(base)+len(ids))
	out = append(out, base...)
	for _, id := range ids {
		out = append(out, StudentNamespace(id))
	}
	return out
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
