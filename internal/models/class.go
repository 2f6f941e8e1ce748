package models

// Class is an entry in the class master; Order drives promotion.
type Class struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Order  int    `db:"sort_order" json:"order"`
	Active bool   `db:"active" json:"active"`
}

// ClassSection links a section of a class to its class teacher for one year.
type ClassSection struct {
	AcademicYear   string  `db:"academic_year" json:"academicYear"`
	ClassID        string  `db:"class_id" json:"classId"`
	SectionID      string  `db:"section_id" json:"sectionId"`
	ClassTeacherID *string `db:"class_teacher_id" json:"classTeacherId,omitempty"`
}

// RelationCloneResult reports rows copied into a new year per relation map.
type RelationCloneResult struct {
	ClassSections   int64 `json:"classSections"`
	ClassSubjects   int64 `json:"classSubjects"`
	SubjectTeachers int64 `json:"subjectTeachers"`
}
