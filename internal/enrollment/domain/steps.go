package domain

var allowedSteps = map[Status]map[Step]struct{}{
	StatusPreEnrollment: {
		StepStart:       {},
		StepInformation: {},
		StepDiscounts:   {},
		StepSubjects:    {},
	},
	StatusEnrollment: {
		StepInformation:      {},
		StepDiscounts:        {},
		StepSubjects:         {},
		StepPayment:          {},
		StepEnrollmentStatus: {},
	},
}

// StepAllowed reports whether step may be written while in status.
// Only ongoing statuses allow writes; earlier steps stay editable.
func StepAllowed(status Status, step Step) bool {
	steps, ok := allowedSteps[status]
	if !ok {
		return false
	}
	_, ok = steps[step]
	return ok
}
