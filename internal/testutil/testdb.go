package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"student-records-api/internal/database"
	"student-records-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB creates a file-backed SQLite DB under t.TempDir and runs
// migrations. A file (not :memory:) keeps every pooled connection on the same
// database, which background-task tests rely on.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), database.Options{
		LogLevel: logger.Silent,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// SeedStudents inserts the given students and returns them with ids assigned.
func SeedStudents(t testing.TB, db *gorm.DB, students ...models.Student) []models.Student {
	t.Helper()
	for i := range students {
		if err := db.Create(&students[i]).Error; err != nil {
			t.Fatalf("seed student: %v", err)
		}
	}
	return students
}

// WriteFile writes content to name under t.TempDir and returns the path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
