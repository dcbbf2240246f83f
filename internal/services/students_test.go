package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"student-records-api/internal/cache"
	"student-records-api/internal/models"
	"student-records-api/internal/repo"
	"student-records-api/internal/tasks"
	"student-records-api/internal/testutil"

	"github.com/stretchr/testify/require"
)

// countingStore counts reads that reach the record store.
type countingStore struct {
	repo.StudentStore
	reads atomic.Int64
}

func (c *countingStore) List(ctx context.Context, offset, limit int) ([]models.Student, error) {
	c.reads.Add(1)
	return c.StudentStore.List(ctx, offset, limit)
}

func (c *countingStore) Get(ctx context.Context, id uint) (models.Student, error) {
	c.reads.Add(1)
	return c.StudentStore.Get(ctx, id)
}

func (c *countingStore) ListByFaculty(ctx context.Context, faculty string) ([]models.Student, error) {
	c.reads.Add(1)
	return c.StudentStore.ListByFaculty(ctx, faculty)
}

func (c *countingStore) DistinctCourses(ctx context.Context) ([]string, error) {
	c.reads.Add(1)
	return c.StudentStore.DistinctCourses(ctx)
}

func (c *countingStore) AverageGrade(ctx context.Context, faculty string) (float64, error) {
	c.reads.Add(1)
	return c.StudentStore.AverageGrade(ctx, faculty)
}

type failingInvalidation struct{ *cache.MemoryStore }

func (failingInvalidation) InvalidatePrefix(context.Context, string) (int, error) {
	return 0, errors.New("cache down")
}

type fixture struct {
	svc     *StudentService
	store   *countingStore
	cache   *cache.MemoryStore
	results chan tasks.Result
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := &countingStore{StudentStore: repo.NewStudents(db)}
	mem := cache.NewMemoryStore()
	results := make(chan tasks.Result, 8)
	runner := tasks.NewRunner(mem, tasks.Options{Workers: 1, OnDone: func(r tasks.Result) { results <- r }})
	runner.Start(context.Background())
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	return &fixture{
		svc:     NewStudentService(store, mem, runner, time.Minute),
		store:   store,
		cache:   mem,
		results: results,
	}
}

func (f *fixture) waitTask(t *testing.T) tasks.Result {
	t.Helper()
	select {
	case r := <-f.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("background task did not finish")
		return tasks.Result{}
	}
}

func (f *fixture) cached(t *testing.T, key string) bool {
	t.Helper()
	_, ok, err := f.cache.Get(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func seed(t *testing.T, f *fixture, students ...models.Student) []models.Student {
	t.Helper()
	out := make([]models.Student, 0, len(students))
	for _, s := range students {
		created, err := f.svc.Create(context.Background(), s)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func TestReadThrough_SecondReadSkipsStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f, models.Student{Surname: "A", Name: "A", Faculty: "Math", Course: "Algebra", Grade: 5})

	first, err := f.svc.List(ctx, 0, 100)
	require.NoError(t, err)
	second, err := f.svc.List(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, f.store.reads.Load())

	_, err = f.svc.List(ctx, 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, f.store.reads.Load(), "different params are a different key")
}

func TestGet_NotFoundIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, 42)
	require.ErrorIs(t, err, repo.ErrNotFound)
	_, err = f.svc.Get(ctx, 42)
	require.ErrorIs(t, err, repo.ErrNotFound)
	require.EqualValues(t, 2, f.store.reads.Load())
}

func TestWrites_InvalidateEveryDerivedNamespace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := seed(t, f,
		models.Student{Surname: "A", Name: "A", Faculty: "Math", Course: "Algebra", Grade: 5},
		models.Student{Surname: "B", Name: "B", Faculty: "Physics", Course: "Optics", Grade: 3},
	)

	warm := func() {
		t.Helper()
		_, err := f.svc.List(ctx, 0, 100)
		require.NoError(t, err)
		_, err = f.svc.Get(ctx, st[0].ID)
		require.NoError(t, err)
		_, err = f.svc.Get(ctx, st[1].ID)
		require.NoError(t, err)
		_, err = f.svc.FacultyStudents(ctx, "Math")
		require.NoError(t, err)
		_, err = f.svc.Courses(ctx)
		require.NoError(t, err)
		_, err = f.svc.FacultyAverage(ctx, "Math")
		require.NoError(t, err)
	}
	derivedKeys := []string{
		cache.Key(NSStudents, cache.Params{"skip": 0, "limit": 100}),
		cache.Key(NSFacultyStudents, cache.Params{"faculty": "Math"}),
		cache.Key(NSUniqueCourses, nil),
		cache.Key(NSFacultyAvgGrade, cache.Params{"faculty": "Math"}),
	}
	one := cache.Key(NSStudent, cache.Params{"student_id": st[0].ID})
	other := cache.Key(NSStudent, cache.Params{"student_id": st[1].ID})

	assertDropped := func(op string) {
		t.Helper()
		for _, k := range derivedKeys {
			require.False(t, f.cached(t, k), "%s left %s cached", op, k)
		}
	}

	warm()
	_, err := f.svc.Create(ctx, models.Student{Surname: "C", Name: "C", Faculty: "Math", Course: "Geometry", Grade: 4})
	require.NoError(t, err)
	assertDropped("create")
	require.True(t, f.cached(t, one))

	warm()
	_, err = f.svc.Update(ctx, st[0].ID, models.StudentPatch{Grade: ptr(2)})
	require.NoError(t, err)
	assertDropped("update")
	require.False(t, f.cached(t, one))
	require.True(t, f.cached(t, other))

	got, err := f.svc.Get(ctx, st[0].ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Grade)
	avg, err := f.svc.FacultyAverage(ctx, "Math")
	require.NoError(t, err)
	require.InDelta(t, 3.0, avg, 1e-9)

	warm()
	require.NoError(t, f.svc.Delete(ctx, st[0].ID))
	assertDropped("delete")
	require.False(t, f.cached(t, one))
	_, err = f.svc.Get(ctx, st[0].ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestWrites_FailedMutationLeavesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.List(ctx, 0, 100)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, 999), repo.ErrNotFound)
	require.True(t, f.cached(t, cache.Key(NSStudents, cache.Params{"skip": 0, "limit": 100})))
}

func TestWrites_InvalidationFailureSurfaces(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewStudentService(repo.NewStudents(db), failingInvalidation{cache.NewMemoryStore()}, nil, 0)
	_, err := svc.Create(context.Background(), models.Student{Surname: "A", Name: "A", Faculty: "F", Course: "C", Grade: 1})
	require.ErrorContains(t, err, "cache down")
}

func TestBulkDelete_EventuallyGoneAndInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := seed(t, f,
		models.Student{Surname: "A", Name: "A", Faculty: "Math", Course: "Algebra", Grade: 5},
		models.Student{Surname: "B", Name: "B", Faculty: "Math", Course: "Algebra", Grade: 4},
		models.Student{Surname: "C", Name: "C", Faculty: "Physics", Course: "Optics", Grade: 3},
	)
	_, err := f.svc.Get(ctx, st[0].ID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, st[2].ID)
	require.NoError(t, err)
	_, err = f.svc.List(ctx, 0, 100)
	require.NoError(t, err)

	id, err := f.svc.StartBulkDelete(ctx, []uint{st[0].ID, st[1].ID, st[0].ID}, 1)
	require.NoError(t, err)
	res := f.waitTask(t)
	require.Equal(t, id, res.ID)
	require.NoError(t, res.Err)
	require.EqualValues(t, 2, res.Affected)

	for _, s := range st[:2] {
		_, err := f.svc.Get(ctx, s.ID)
		require.ErrorIs(t, err, repo.ErrNotFound)
	}
	require.False(t, f.cached(t, cache.Key(NSStudents, cache.Params{"skip": 0, "limit": 100})))
	require.True(t, f.cached(t, cache.Key(NSStudent, cache.Params{"student_id": st[2].ID})))

	list, err := f.svc.List(ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestBulkDelete_EmptyList(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartBulkDelete(context.Background(), nil, 1)
	require.ErrorIs(t, err, ErrEmptyIDList)
}

func TestImport_InvalidatesOnCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	courses, err := f.svc.Courses(ctx)
	require.NoError(t, err)
	require.Empty(t, courses)

	path := testutil.WriteFile(t, "students.csv",
		"Фамилия,Имя,Факультет,Курс,Оценка\nИванов,Иван,Математика,Алгебра,5\n")
	_, err = f.svc.StartImport(ctx, path, 1)
	require.NoError(t, err)
	res := f.waitTask(t)
	require.NoError(t, res.Err)
	require.EqualValues(t, 1, res.Affected)

	courses, err = f.svc.Courses(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Алгебра"}, courses)
}

func TestImport_FailureStillInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.List(ctx, 0, 100)
	require.NoError(t, err)

	path := testutil.WriteFile(t, "bad.csv", "surname,name\nA,B\n")
	_, err = f.svc.StartImport(ctx, path, 1)
	require.NoError(t, err)
	res := f.waitTask(t)
	require.Error(t, res.Err)
	require.False(t, f.cached(t, cache.Key(NSStudents, cache.Params{"skip": 0, "limit": 100})))
}

func TestImport_PathChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartImport(ctx, "/no/such/file.csv", 1)
	require.ErrorIs(t, err, ErrFileNotFound)
	_, err = f.svc.StartImport(ctx, "  ", 1)
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = f.svc.StartImport(ctx, t.TempDir(), 1)
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestStudentNamespace(t *testing.T) {
	require.Equal(t, "student:student_id=5", StudentNamespace(5))
}

func ptr[T any](v T) *T { return &v }
