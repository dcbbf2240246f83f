package repo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"student-records-api/internal/models"

	"gorm.io/gorm"
)

const importBatchSize = 200

// column aliases accepted in the header row, lower-cased.
var csvColumns = map[string]string{
	"фамилия":   "surname",
	"имя":       "name",
	"факультет": "faculty",
	"курс":      "course",
	"оценка":    "grade",
	"surname":   "surname",
	"name":      "name",
	"faculty":   "faculty",
	"course":    "course",
	"grade":     "grade",
}

var requiredColumns = []string{"surname", "name", "faculty", "course", "grade"}

// ImportCSV loads every row of the CSV file at path in a single transaction
// and returns the number of records created. A malformed row aborts the whole
// import. A missing file yields an error wrapping os.ErrNotExist.
func (r *Students) ImportCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("repo: open csv: %w", err)
	}
	defer f.Close()

	students, err := parseStudentsCSV(f)
	if err != nil {
		return 0, fmt.Errorf("repo: parse %s: %w", path, err)
	}
	if len(students) == 0 {
		return 0, nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&students, importBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("repo: import csv: %w", err)
	}
	return len(students), nil
}

func parseStudentsCSV(src io.Reader) ([]models.Student, error) {
	rd := csv.NewReader(src)
	rd.TrimLeadingSpace = true

	header, err := rd.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(requiredColumns))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if col, ok := csvColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			idx[col] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []models.Student
	for {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := rd.FieldPos(0)

		grade, err := strconv.Atoi(strings.TrimSpace(rec[idx["grade"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: grade %q is not an integer", line, rec[idx["grade"]])
		}
		out = append(out, models.Student{
			Surname: strings.TrimSpace(rec[idx["surname"]]),
			Name:    strings.TrimSpace(rec[idx["name"]]),
			Faculty: strings.TrimSpace(rec[idx["faculty"]]),
			Course:  strings.TrimSpace(rec[idx["course"]]),
			Grade:   grade,
		})
	}
	return out, nil
}
