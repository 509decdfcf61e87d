package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	auditdomain "github.com/smallbiznis/registrar/internal/audit/domain"
	auditrepo "github.com/smallbiznis/registrar/internal/audit/repository"
	auditservice "github.com/smallbiznis/registrar/internal/audit/service"
	"github.com/smallbiznis/registrar/internal/authorization"
	authzmock "github.com/smallbiznis/registrar/internal/authorization/mock"
	"github.com/smallbiznis/registrar/internal/clock"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	enrollmentrepo "github.com/smallbiznis/registrar/internal/enrollment/repository"
	"github.com/smallbiznis/registrar/internal/events"
	gradedomain "github.com/smallbiznis/registrar/internal/grade/domain"
	graderepo "github.com/smallbiznis/registrar/internal/grade/repository"
	gradeservice "github.com/smallbiznis/registrar/internal/grade/service"
	obsmiddleware "github.com/smallbiznis/registrar/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/registrar/internal/settlement/domain"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	"github.com/smallbiznis/registrar/internal/testutil"
	"github.com/smallbiznis/registrar/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
		code   string
	}{
		{"validation sentinel", enrollmentdomain.ErrInvalidStep, http.StatusBadRequest, "validation_error", "invalid_step"},
		{"page token", pagination.ErrInvalidPageToken, http.StatusBadRequest, "validation_error", "invalid_page_token"},
		{"wrapped step not allowed", fmt.Errorf("%w: step %q cannot be written", enrollmentdomain.ErrStepNotAllowed, "subjects"), http.StatusForbidden, "forbidden", "step_not_allowed"},
		{"casbin forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden", "forbidden"},
		{"grade locked", gradedomain.ErrGradeLocked, http.StatusForbidden, "forbidden", "grade_locked"},
		{"invalid actor", authorization.ErrInvalidActor, http.StatusUnauthorized, "unauthorized", ""},
		{"statement not found", soadomain.ErrStatementNotFound, http.StatusNotFound, "not_found", "statement_not_found"},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found", ""},
		{"enrollment exists", enrollmentdomain.ErrEnrollmentExists, http.StatusConflict, "conflict", "enrollment_already_exists"},
		{"batch already processed", settlementdomain.ErrAlreadyProcessed, http.StatusConflict, "conflict", "settlement_already_processed"},
		{"payment rate limited", paymentdomain.ErrPaymentRateLimited, http.StatusTooManyRequests, "rate_limited", ""},
		{"gateway failure", paymentdomain.ErrGatewayRequestFailed, http.StatusBadGateway, "gateway_error", ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
			if tc.code != "" {
				assert.Equal(t, tc.code, payload.Code)
			}
		})
	}
}

func TestClassifyErrorForLogMarksInternalErrors(t *testing.T) {
	typ, code := classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "internal_error", code)

	typ, code = classifyErrorForLog(gradedomain.ErrInvalidField)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, gradedomain.ErrInvalidField.Error(), code)
}

func TestFlattenValuesKeepsFirstValue(t *testing.T) {
	out := flattenValues(map[string][]string{
		"txnid":  {"T-1", "T-2"},
		"status": {"S"},
		"empty":  {},
	})
	assert.Equal(t, map[string]string{"txnid": "T-1", "status": "S"}, out)
}

type gradeFixture struct {
	engine *gin.Engine
	authz  *authzmock.MockService
	fix    *testutil.Fixture
}

func setupGradeServer(t *testing.T) gradeFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	authz := authzmock.NewMockService(ctrl)

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC))
	fix := testutil.Seed(t, db, node, testutil.SeedOptions{})
	gradeSvc := gradeservice.NewService(gradeservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Repo:        graderepo.Provide(),
		Enrollments: enrollmentrepo.Provide(),
		Outbox:      events.NewOutbox(events.OutboxParams{DB: db, GenID: node, Clock: clk}),
	})

	engine := gin.New()
	engine.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{ErrorClassifier: classifyErrorForLog}))
	engine.Use(ErrorHandlingMiddleware())

	s := &Server{
		engine:   engine,
		log:      zap.NewNop(),
		authzSvc: authz,
		gradeSvc: gradeSvc,
	}
	api := engine.Group("/api", s.ActorRequired())
	api.GET("/grades/:enrolled_class_id", s.authorize(authorization.ObjectGrade, authorization.ActionGradeUpdate), s.GetGrade)
	api.PATCH("/grades/:enrolled_class_id", s.authorize(authorization.ObjectGrade, authorization.ActionGradeUpdate), s.UpdateGrade)

	return gradeFixture{engine: engine, authz: authz, fix: fix}
}

func doRequest(engine *gin.Engine, method, path, actor, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(obsmiddleware.ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	f := setupGradeServer(t)

	rec := doRequest(f.engine, http.MethodGet, "/api/grades/"+f.fix.EnrolledClass.ID.String(), "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	rec = doRequest(f.engine, http.MethodGet, "/api/grades/"+f.fix.EnrolledClass.ID.String(), "not-an-id", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForbiddenActorIsRejected(t *testing.T) {
	f := setupGradeServer(t)
	f.authz.EXPECT().
		Authorize(gomock.Any(), "user:42", authorization.ObjectGrade, authorization.ActionGradeUpdate).
		Return(authorization.ErrForbidden)

	rec := doRequest(f.engine, http.MethodPatch, "/api/grades/"+f.fix.EnrolledClass.ID.String(), "42",
		`{"field":"prelim","value":"1.75"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Code)
}

func TestUpdateGradeThroughHTTP(t *testing.T) {
	f := setupGradeServer(t)
	f.authz.EXPECT().
		Authorize(gomock.Any(), "user:42", authorization.ObjectGrade, authorization.ActionGradeUpdate).
		Return(nil).
		Times(3)
	path := "/api/grades/" + f.fix.EnrolledClass.ID.String()

	rec := doRequest(f.engine, http.MethodPatch, path, "user:42", `{"field":"prelim","value":"1.50","submit":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data gradedomain.EnrolledClassGrade `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1.50", resp.Data.Prelim.Value)
	assert.Equal(t, gradedomain.StateSubmitted, resp.Data.Prelim.State)

	rec = doRequest(f.engine, http.MethodPatch, path, "user:42", `{"field":"prelim","value":"1.00"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, gradedomain.ErrGradeLocked.Error(), decodeError(t, rec).Code)

	rec = doRequest(f.engine, http.MethodPatch, path, "user:42", `{"field":"quiz","value":"1.00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)
}

func TestInvalidPathIDIsValidationError(t *testing.T) {
	f := setupGradeServer(t)
	f.authz.EXPECT().
		Authorize(gomock.Any(), "system", authorization.ObjectGrade, authorization.ActionGradeUpdate).
		Return(nil)

	rec := doRequest(f.engine, http.MethodGet, "/api/grades/abc", "system", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)
}

func TestUpdateEnrollmentRequestRequiresStep(t *testing.T) {
	_, err := updateEnrollmentRequest{}.toUpdateRequest()
	assert.Error(t, err)

	step := int(enrollmentdomain.StepSubjects)
	req, err := updateEnrollmentRequest{
		Step: &step,
		Subjects: &subjectsRequest{Classes: []classSelectionRequest{
			{ClassID: "1234", CurriculumSubjectID: "77"},
		}},
	}.toUpdateRequest()
	require.NoError(t, err)
	assert.Equal(t, enrollmentdomain.StepSubjects, req.Step)
	require.Len(t, req.Subjects.Classes, 1)
	assert.Equal(t, "1234", req.Subjects.Classes[0].ClassID.String())
	require.NotNil(t, req.Subjects.Classes[0].CurriculumSubjectID)
	assert.Nil(t, req.Subjects.Classes[0].EquivalentSubjectID)

	_, err = updateEnrollmentRequest{
		Step:      &step,
		Discounts: &discountsRequest{DiscountID: "x"},
	}.toUpdateRequest()
	assert.Error(t, err)
}

func TestEnrollmentRequestBindingRejectsMissingFields(t *testing.T) {
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	s := &Server{engine: engine, log: zap.NewNop()}
	engine.POST("/enrollments", s.StartEnrollment)
	engine.PATCH("/enrollments/:id", s.UpdateEnrollment)
	engine.POST("/enrollments/:id/status", s.OverrideEnrollment)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"start without ids", http.MethodPost, "/enrollments", `{"year_level":1}`},
		{"start without year level", http.MethodPost, "/enrollments", `{"student_id":"1","semester_id":"2"}`},
		{"start with zero year level", http.MethodPost, "/enrollments", `{"student_id":"1","semester_id":"2","year_level":0}`},
		{"update without step", http.MethodPatch, "/enrollments/1", `{"payment":{}}`},
		{"update with negative step", http.MethodPatch, "/enrollments/1", `{"step":-1}`},
		{"subjects without class", http.MethodPatch, "/enrollments/1", `{"step":3,"subjects":{"classes":[{"curriculum_subject_id":"77"}]}}`},
		{"override without status", http.MethodPost, "/enrollments/1/status", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(engine, tc.method, tc.path, "", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", decodeError(t, rec).Type)
		})
	}
}

func TestAuditLogsEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	authz := authzmock.NewMockService(ctrl)
	authz.EXPECT().
		Authorize(gomock.Any(), "user:7", authorization.ObjectAudit, authorization.ActionAuditView).
		Return(nil)

	db := testutil.NewDB(t)
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clock.NewFakeClock(time.Date(2024, 8, 5, 9, 0, 0, 0, time.UTC)),
		Repo:  auditrepo.Provide(),
	})

	engine := gin.New()
	engine.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{ErrorClassifier: classifyErrorForLog}))
	engine.Use(ErrorHandlingMiddleware())
	s := &Server{engine: engine, log: zap.NewNop(), authzSvc: authz, auditSvc: auditSvc}
	engine.POST("/record/:id", s.ActorRequired(), func(c *gin.Context) {
		s.recordAudit(c, authorization.ActionPaymentVoid, authorization.ObjectPayment, c.Param("id"), map[string]any{"reason": "duplicate"})
		c.Status(http.StatusNoContent)
	})
	admin := engine.Group("/admin", s.ActorRequired())
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionAuditView), s.ListAuditLogs)

	rec := doRequest(engine, http.MethodPost, "/record/99", "user:7", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(engine, http.MethodGet, "/admin/audit-logs?action=payment.void", "user:7", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data []auditdomain.AuditLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, authorization.ActionPaymentVoid, resp.Data[0].Action)
	require.NotNil(t, resp.Data[0].ActorID)
	assert.Equal(t, "7", *resp.Data[0].ActorID)
}

func TestRecordAuditWithoutServiceIsNoop(t *testing.T) {
	s := &Server{log: zap.NewNop()}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	assert.NotPanics(t, func() {
		s.recordAudit(c, "soa.rebuild", "soa", "1", nil)
	})
}
