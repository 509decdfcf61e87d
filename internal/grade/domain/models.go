package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrGradeLocked           = errors.New("grade_locked")
	ErrInvalidField          = errors.New("invalid_grade_field")
	ErrInvalidValue          = errors.New("invalid_grade_value")
	ErrEnrolledClassNotFound = errors.New("enrolled_class_not_found")
)

type State string

const (
	StateEmpty     State = "empty"
	StateDraft     State = "draft"
	StateSubmitted State = "submitted"
)

type Field string

const (
	FieldPrelim         Field = "prelim"
	FieldMidterm        Field = "midterm"
	FieldTentativeFinal Field = "tentative_final"
	FieldFinal          Field = "final"
)

func ParseField(v string) (Field, bool) {
	switch f := Field(strings.ToLower(strings.TrimSpace(v))); f {
	case FieldPrelim, FieldMidterm, FieldTentativeFinal, FieldFinal:
		return f, true
	}
	return "", false
}

// Entry is one gated grade value.
type Entry struct {
	Value string `gorm:"column:value" json:"value"`
	State State  `gorm:"column:state;type:text;not null;default:empty" json:"state"`
}

// Editable reports whether the entry still accepts changes.
func (e Entry) Editable() bool {
	return e.State == "" || e.State == StateEmpty || e.State == StateDraft
}

// EnrolledClassGrade holds the four independently submitted grades of an enrolled class.
type EnrolledClassGrade struct {
	EnrolledClassID snowflake.ID `gorm:"primaryKey" json:"enrolled_class_id"`
	Prelim          Entry        `gorm:"embedded;embeddedPrefix:prelim_" json:"prelim"`
	Midterm         Entry        `gorm:"embedded;embeddedPrefix:midterm_" json:"midterm"`
	TentativeFinal  Entry        `gorm:"embedded;embeddedPrefix:tentative_final_" json:"tentative_final"`
	Final           Entry        `gorm:"embedded;embeddedPrefix:final_" json:"final"`
	UpdatedBy       string       `json:"updated_by"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (EnrolledClassGrade) TableName() string { return "enrolled_class_grades" }

// Entry returns a pointer to the entry for field.
func (g *EnrolledClassGrade) Entry(field Field) *Entry {
	switch field {
	case FieldPrelim:
		return &g.Prelim
	case FieldMidterm:
		return &g.Midterm
	case FieldTentativeFinal:
		return &g.TentativeFinal
	case FieldFinal:
		return &g.Final
	}
	return nil
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, enrolledClassID snowflake.ID) (*EnrolledClassGrade, error)
	Lock(ctx context.Context, db *gorm.DB, enrolledClassID snowflake.ID) (*EnrolledClassGrade, error)
	Save(ctx context.Context, db *gorm.DB, grade *EnrolledClassGrade) error
}
