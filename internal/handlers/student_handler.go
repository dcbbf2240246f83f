package handlers

import (
	"context"
	"net/http"
	"strconv"

	"student-records-api/internal/middleware"
	"student-records-api/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// StudentService is what the student endpoints need from the service layer.
type StudentService interface {
	List(ctx context.Context, skip, limit int) ([]models.Student, error)
	Get(ctx context.Context, id uint) (models.Student, error)
	Create(ctx context.Context, s models.Student) (models.Student, error)
	Update(ctx context.Context, id uint, patch models.StudentPatch) (models.Student, error)
	Delete(ctx context.Context, id uint) error
	FacultyStudents(ctx context.Context, faculty string) ([]models.Student, error)
	Courses(ctx context.Context) ([]string, error)
	FacultyAverage(ctx context.Context, faculty string) (float64, error)
	StartImport(ctx context.Context, path string, userID uint) (string, error)
	StartBulkDelete(ctx context.Context, ids []uint, userID uint) (string, error)
}

// CreateStudentRequest represents the request payload for creating a student
type CreateStudentRequest struct {
	Surname string `json:"surname" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Faculty string `json:"faculty" binding:"required"`
	Course  string `json:"course" binding:"required"`
	Grade   *int   `json:"grade" binding:"required"`
}

// LoadCSVRequest names a CSV file readable by the server.
type LoadCSVRequest struct {
	FilePath string `json:"file_path"`
}

// BulkDeleteRequest lists the students to remove.
type BulkDeleteRequest struct {
	StudentIDs []uint `json:"student_ids"`
}

// StudentHandler serves /students, /faculties and /courses.
type StudentHandler struct {
	svc StudentService
}

// NewStudentHandler returns a StudentHandler over svc.
func NewStudentHandler(svc StudentService) *StudentHandler {
	return &StudentHandler{svc: svc}
}

// Create adds a student.
// POST /students/
func (h *StudentHandler) Create(c *gin.Context) {
	var req CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	st, err := h.svc.Create(c.Request.Context(), models.Student{
		Surname: req.Surname,
		Name:    req.Name,
		Faculty: req.Faculty,
		Course:  req.Course,
		Grade:   *req.Grade,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// List returns a page of students.
// GET /students/?skip=0&limit=100
func (h *StudentHandler) List(c *gin.Context) {
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", defaultLimit)
	if !ok {
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	out, err := h.svc.List(c.Request.Context(), skip, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Get returns one student.
// GET /students/:id
func (h *StudentHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	st, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Update applies a partial update.
// PUT /students/:id
func (h *StudentHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch models.StudentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	st, err := h.svc.Update(c.Request.Context(), id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Delete removes one student.
// DELETE /students/:id
func (h *StudentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Student deleted successfully"})
}

// LoadCSV queues a CSV import. The path comes from the file_path query
// parameter or the JSON body.
// POST /students/load-csv
func (h *StudentHandler) LoadCSV(c *gin.Context) {
	path := c.Query("file_path")
	if path == "" && c.Request.ContentLength != 0 {
		var req LoadCSVRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
		path = req.FilePath
	}
	uid, _ := middleware.UserID(c)
	id, err := h.svc.StartImport(c.Request.Context(), path, uid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, TaskAccepted{Message: "CSV import started in background", TaskID: id})
}

// BulkDelete queues removal of many students.
// DELETE /students/bulk-delete
func (h *StudentHandler) BulkDelete(c *gin.Context) {
	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	uid, _ := middleware.UserID(c)
	id, err := h.svc.StartBulkDelete(c.Request.Context(), req.StudentIDs, uid)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, TaskAccepted{Message: "Student deletion started in background", TaskID: id})
}

// FacultyStudents lists one faculty's students.
// GET /faculties/:faculty/students
func (h *StudentHandler) FacultyStudents(c *gin.Context) {
	out, err := h.svc.FacultyStudents(c.Request.Context(), c.Param("faculty"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Courses lists the distinct courses.
// GET /courses/
func (h *StudentHandler) Courses(c *gin.Context) {
	out, err := h.svc.Courses(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// FacultyAverage returns the faculty's average grade as a bare number.
// GET /faculties/:faculty/average_grade
func (h *StudentHandler) FacultyAverage(c *gin.Context) {
	avg, err := h.svc.FacultyAverage(c.Request.Context(), c.Param("faculty"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, avg)
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		badRequest(c, "Invalid student id")
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		badRequest(c, "Invalid "+name+": must be a non-negative integer")
		return 0, false
	}
	return v, true
}
