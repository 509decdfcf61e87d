// Package testutil opens in-memory databases with the registrar schema for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	auditdomain "github.com/smallbiznis/registrar/internal/audit/domain"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	"github.com/smallbiznis/registrar/internal/events"
	feedomain "github.com/smallbiznis/registrar/internal/fee/domain"
	gradedomain "github.com/smallbiznis/registrar/internal/grade/domain"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/registrar/internal/settlement/domain"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Array-typed tables are created by hand; sqlite has no array columns.
var arrayTables = []string{
	`CREATE TABLE curriculum_subjects (
		id INTEGER PRIMARY KEY,
		curriculum_period_id INTEGER NOT NULL,
		subject_id INTEGER NOT NULL,
		category_rate TEXT,
		tuition_fee_category_id INTEGER,
		is_professional NUMERIC NOT NULL DEFAULT false,
		prerequisites TEXT,
		corequisites TEXT
	)`,
	`CREATE TABLE discounts (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		percentage NUMERIC NOT NULL,
		apply_to TEXT,
		fee_exemptions TEXT,
		category_rate_exemption TEXT
	)`,
}

func models() []any {
	return []any{
		&academicdomain.AcademicYear{},
		&academicdomain.Semester{},
		&academicdomain.Course{},
		&academicdomain.Student{},
		&academicdomain.Employee{},
		&academicdomain.EmployeeDependent{},
		&academicdomain.Curriculum{},
		&academicdomain.CurriculumPeriod{},
		&academicdomain.SubjectGroup{},
		&academicdomain.Subject{},
		&academicdomain.Class{},
		&feedomain.Fee{},
		&feedomain.FeeSpecification{},
		&feedomain.FeeSpecificationFee{},
		&feedomain.TuitionFeeCategory{},
		&feedomain.TuitionFeeRate{},
		&feedomain.LaboratoryFee{},
		&enrollmentdomain.Enrollment{},
		&enrollmentdomain.EnrolledClass{},
		&enrollmentdomain.EnrollmentDiscount{},
		&enrollmentdomain.StatusRecord{},
		&soadomain.StatementOfAccount{},
		&soadomain.Category{},
		&soadomain.Line{},
		&soadomain.AccountTransaction{},
		&paymentdomain.Transaction{},
		&paymentdomain.Channel{},
		&settlementdomain.Batch{},
		&settlementdomain.JournalVoucher{},
		&settlementdomain.JournalVoucherEntry{},
		&gradedomain.EnrolledClassGrade{},
		&events.OutboxEvent{},
		&auditdomain.AuditLog{},
	}
}

// NewDB returns a private in-memory database with every registrar table.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:registrar_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models()...))
	for _, ddl := range arrayTables {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

// NewNode returns a snowflake node for tests.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}
