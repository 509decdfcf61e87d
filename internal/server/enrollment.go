package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/registrar/internal/authorization"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	enrollmentservice "github.com/smallbiznis/registrar/internal/enrollment/service"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
)

type startEnrollmentRequest struct {
	StudentID  string `json:"student_id" binding:"required"`
	SemesterID string `json:"semester_id" binding:"required"`
	YearLevel  int    `json:"year_level" binding:"required,min=1"`
}

type informationRequest struct {
	ContactNumber   *string `json:"contact_number"`
	Address         *string `json:"address"`
	GuardianName    *string `json:"guardian_name"`
	GuardianContact *string `json:"guardian_contact"`
}

type discountsRequest struct {
	DiscountID       string `json:"discount_id"`
	EmployeeUsername string `json:"employee_username"`
	DependentID      string `json:"dependent_id"`
	SiblingIDNumber  string `json:"sibling_id_number"`
	Remarks          string `json:"remarks"`
}

type classSelectionRequest struct {
	ClassID             string `json:"class_id" binding:"required"`
	CurriculumSubjectID string `json:"curriculum_subject_id"`
	EquivalentSubjectID string `json:"equivalent_subject_id"`
}

type subjectsRequest struct {
	Classes []classSelectionRequest `json:"classes" binding:"dive"`
}

type paymentStepRequest struct {
	PaymentMethod *string `json:"payment_method"`
	PaymentPlan   *string `json:"payment_plan"`
}

type updateEnrollmentRequest struct {
	Step        *int                `json:"step" binding:"required,min=0"`
	Information *informationRequest `json:"information"`
	Discounts   *discountsRequest   `json:"discounts"`
	Subjects    *subjectsRequest    `json:"subjects"`
	Payment     *paymentStepRequest `json:"payment"`
}

type overrideEnrollmentRequest struct {
	Status string `json:"status" binding:"required"`
}

type rebuildStatementRequest struct {
	DiscountAutoApply bool `json:"discount_auto_apply"`
	Override          bool `json:"override"`
}

type enrollmentResponse struct {
	*enrollmentdomain.Enrollment
	Classes []enrollmentdomain.EnrolledClass `json:"classes"`
}

func (s *Server) StartEnrollment(c *gin.Context) {
	var req startEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	studentID, err := snowflake.ParseString(strings.TrimSpace(req.StudentID))
	if err != nil || studentID == 0 {
		AbortWithError(c, newValidationError("student_id", "invalid_student_id", "invalid student_id"))
		return
	}
	semesterID, err := snowflake.ParseString(strings.TrimSpace(req.SemesterID))
	if err != nil || semesterID == 0 {
		AbortWithError(c, newValidationError("semester_id", "invalid_semester_id", "invalid semester_id"))
		return
	}

	enrollment, err := s.enrollmentSvc.Start(c.Request.Context(), enrollmentservice.StartRequest{
		StudentID:  studentID,
		SemesterID: semesterID,
		YearLevel:  req.YearLevel,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": enrollment})
}

func (s *Server) GetEnrollment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	enrollment, err := s.enrollmentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	classes, err := s.enrollmentSvc.ListClasses(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if classes == nil {
		classes = []enrollmentdomain.EnrolledClass{}
	}

	c.JSON(http.StatusOK, gin.H{"data": enrollmentResponse{Enrollment: enrollment, Classes: classes}})
}

func (s *Server) UpdateEnrollment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	update, err := req.toUpdateRequest()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	enrollment, err := s.enrollmentSvc.Update(c.Request.Context(), id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": enrollment})
}

func (s *Server) SubmitPreEnrollment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	enrollment, err := s.enrollmentSvc.SubmitPreEnrollment(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": enrollment})
}

func (s *Server) OverrideEnrollment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req overrideEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status := enrollmentdomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	enrollment, err := s.enrollmentSvc.Override(c.Request.Context(), id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, authorization.ActionEnrollmentOverride, authorization.ObjectEnrollment, id.String(), map[string]any{
		"status": string(status),
	})

	c.JSON(http.StatusOK, gin.H{"data": enrollment})
}

func (s *Server) RebuildStatement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req rebuildStatementRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	soa, err := s.soaSvc.Create(c.Request.Context(), id, soadomain.CreateOptions{
		DiscountAutoApply: req.DiscountAutoApply,
		Override:          req.Override,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, authorization.ActionSOARebuild, authorization.ObjectSOA, soa.ID.String(), map[string]any{
		"enrollment_id":       id.String(),
		"discount_auto_apply": req.DiscountAutoApply,
		"override":            req.Override,
		"total_amount":        soa.TotalAmount.StringFixed(2),
	})

	c.JSON(http.StatusOK, gin.H{"data": soa})
}

func (r updateEnrollmentRequest) toUpdateRequest() (enrollmentservice.UpdateRequest, error) {
	if r.Step == nil {
		return enrollmentservice.UpdateRequest{}, newValidationError("step", "invalid_step", "step is required")
	}
	out := enrollmentservice.UpdateRequest{Step: enrollmentdomain.Step(*r.Step)}

	if r.Information != nil {
		out.Information = &enrollmentservice.InformationData{
			ContactNumber:   r.Information.ContactNumber,
			Address:         r.Information.Address,
			GuardianName:    r.Information.GuardianName,
			GuardianContact: r.Information.GuardianContact,
		}
	}

	if r.Discounts != nil {
		discountID, err := parseOptionalSnowflakeID(r.Discounts.DiscountID)
		if err != nil {
			return out, newValidationError("discounts.discount_id", "invalid_discount_id", "invalid discount_id")
		}
		dependentID, err := parseOptionalSnowflakeID(r.Discounts.DependentID)
		if err != nil {
			return out, newValidationError("discounts.dependent_id", "invalid_dependent_id", "invalid dependent_id")
		}
		out.Discounts = &enrollmentservice.DiscountsData{
			DiscountID:       discountID,
			EmployeeUsername: strings.TrimSpace(r.Discounts.EmployeeUsername),
			DependentID:      dependentID,
			SiblingIDNumber:  strings.TrimSpace(r.Discounts.SiblingIDNumber),
			Remarks:          r.Discounts.Remarks,
		}
	}

	if r.Subjects != nil {
		classes := make([]enrollmentservice.ClassSelection, 0, len(r.Subjects.Classes))
		for _, item := range r.Subjects.Classes {
			classID, err := snowflake.ParseString(strings.TrimSpace(item.ClassID))
			if err != nil || classID == 0 {
				return out, newValidationError("subjects.classes.class_id", "invalid_class_id", "invalid class_id")
			}
			curriculumSubjectID, err := parseOptionalSnowflakeID(item.CurriculumSubjectID)
			if err != nil {
				return out, newValidationError("subjects.classes.curriculum_subject_id", "invalid_curriculum_subject_id", "invalid curriculum_subject_id")
			}
			equivalentSubjectID, err := parseOptionalSnowflakeID(item.EquivalentSubjectID)
			if err != nil {
				return out, newValidationError("subjects.classes.equivalent_subject_id", "invalid_equivalent_subject_id", "invalid equivalent_subject_id")
			}
			classes = append(classes, enrollmentservice.ClassSelection{
				ClassID:             classID,
				CurriculumSubjectID: curriculumSubjectID,
				EquivalentSubjectID: equivalentSubjectID,
			})
		}
		out.Subjects = &enrollmentservice.SubjectsData{Classes: classes}
	}

	if r.Payment != nil {
		out.Payment = &enrollmentservice.PaymentData{
			PaymentMethod: r.Payment.PaymentMethod,
			PaymentPlan:   r.Payment.PaymentPlan,
		}
	}

	return out, nil
}
