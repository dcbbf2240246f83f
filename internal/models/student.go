package models

// Student represents a student record
type Student struct {
	ID      uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	Surname string `json:"surname" gorm:"size:50;not null"`
	Name    string `json:"name" gorm:"size:50;not null"`
	Faculty string `json:"faculty" gorm:"size:50;not null;index"`
	Course  string `json:"course" gorm:"size:50;not null"`
	Grade   int    `json:"grade" gorm:"not null"`
}

// TableName specifies the table name for Student Model
func (Student) TableName() string {
	return "students"
}

// StudentPatch carries a partial update; nil fields are left untouched.
type StudentPatch struct {
	Surname *string `json:"surname"`
	Name    *string `json:"name"`
	Faculty *string `json:"faculty"`
	Course  *string `json:"course"`
	Grade   *int    `json:"grade"`
}

// Columns returns the supplied fields keyed by column name.
func (p StudentPatch) Columns() map[string]any {
	cols := make(map[string]any, 5)
	if p.Surname != nil {
		cols["surname"] = *p.Surname
	}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Faculty != nil {
		cols["faculty"] = *p.Faculty
	}
	if p.Course != nil {
		cols["course"] = *p.Course
	}
	if p.Grade != nil {
		cols["grade"] = *p.Grade
	}
	return cols
}
