package domain_test

import (
	"testing"

	"github.com/smallbiznis/registrar/internal/enrollment/domain"
	"github.com/stretchr/testify/assert"
)

func TestStepAllowed(t *testing.T) {
	cases := []struct {
		status domain.Status
		step   domain.Step
		want   bool
	}{
		{domain.StatusPreEnrollment, domain.StepStart, true},
		{domain.StatusPreEnrollment, domain.StepSubjects, true},
		{domain.StatusPreEnrollment, domain.StepPayment, false},
		{domain.StatusPreEnrollment, domain.StepEnrollmentStatus, false},
		{domain.StatusEnrollment, domain.StepStart, false},
		{domain.StatusEnrollment, domain.StepInformation, true},
		{domain.StatusEnrollment, domain.StepPayment, true},
		{domain.StatusEnrollment, domain.StepEnrollmentStatus, true},
		{domain.StatusPreEnrolled, domain.StepInformation, false},
		{domain.StatusEnrolled, domain.StepSubjects, false},
		{domain.StatusInvalid, domain.StepInformation, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, domain.StepAllowed(tc.status, tc.step), "%s/%s", tc.status, tc.step)
	}
}

func TestStatusOngoing(t *testing.T) {
	assert.True(t, domain.StatusPreEnrollment.Ongoing())
	assert.True(t, domain.StatusEnrollment.Ongoing())
	assert.False(t, domain.StatusEnrolled.Ongoing())
	assert.False(t, domain.Status("bogus").Valid())
}
