package domain

import (
	"testing"
	"time"
)

func TestTermOrder(t *testing.T) {
	if !(TermFirst < TermSecond && TermSecond < TermSummer) {
		t.Fatalf("terms must be ordered first < second < summer")
	}
	if Term(0).Valid() || Term(4).Valid() {
		t.Fatalf("out of range terms must be invalid")
	}
	if TermSummer.String() != "summer" {
		t.Fatalf("unexpected name %q", TermSummer.String())
	}
}

func TestSemesterWindows(t *testing.T) {
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
	preStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	preEnd := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	sem := Semester{StartDate: start, EndDate: end, PreEnrollmentStart: &preStart, PreEnrollmentEnd: &preEnd}

	if !sem.IsCurrent(start) {
		t.Fatalf("start date is inclusive")
	}
	if sem.IsCurrent(end) {
		t.Fatalf("end date is exclusive")
	}
	if !sem.InPreEnrollment(preStart.Add(time.Hour)) {
		t.Fatalf("expected pre-enrollment window to be open")
	}
	if sem.InEnrollment(start) {
		t.Fatalf("enrollment window is unset and must be closed")
	}
}
