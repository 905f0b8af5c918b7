package models

import (
	"regexp"
	"time"

	"github.com/lib/pq"
)

// EnrollmentStatus represents the review lifecycle of a pre-enrollment.
type EnrollmentStatus string

const (
	StatusPending    EnrollmentStatus = "PENDING"
	StatusInAnalysis EnrollmentStatus = "IN_ANALYSIS"
	StatusConfirmed  EnrollmentStatus = "CONFIRMED"
	StatusWaitlist   EnrollmentStatus = "WAITLIST"
	StatusRejected   EnrollmentStatus = "REJECTED"
)

// ValidStatus reports whether s is one of the five known statuses.
func ValidStatus(s EnrollmentStatus) bool {
	switch s {
	case StatusPending, StatusInAnalysis, StatusConfirmed, StatusWaitlist, StatusRejected:
		return true
	}
	return false
}

// statusTransitions defines the allowed review moves. CONFIRMED, WAITLIST and
// REJECTED are terminal.
var statusTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	StatusPending:    {StatusInAnalysis, StatusConfirmed, StatusWaitlist, StatusRejected},
	StatusInAnalysis: {StatusConfirmed, StatusWaitlist, StatusRejected},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to EnrollmentStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SeatHoldingStatuses are the statuses that occupy a seat in a class.
// WAITLIST and REJECTED free the seat.
var SeatHoldingStatuses = []EnrollmentStatus{StatusPending, StatusInAnalysis, StatusConfirmed}

// TokenPattern is the enrollment token format: R followed by five digits.
var TokenPattern = regexp.MustCompile(`^R\d{5}$`)

// GuardianNotInformed is stored instead of null when a guardian field is skipped.
const GuardianNotInformed = "Não informado"

// StudyObjective enumerates the applicant's stated goals.
type StudyObjective string

const (
	ObjectiveENEM           StudyObjective = "ENEM"
	ObjectiveUFGVestibular  StudyObjective = "UFG_VESTIBULAR"
	ObjectiveReinforcement  StudyObjective = "SCHOOL_REINFORCEMENT"
	ObjectiveCompetitions   StudyObjective = "PUBLIC_COMPETITIONS"
)

// WritingLevel is the self-rated writing skill of the applicant.
type WritingLevel string

const (
	WritingBeginner     WritingLevel = "BEGINNER"
	WritingIntermediate WritingLevel = "INTERMEDIATE"
	WritingAdvanced     WritingLevel = "ADVANCED"
)

// PaymentMethod tags the intended payment channel for the chosen plan.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentPix        PaymentMethod = "PIX"
	PaymentCash       PaymentMethod = "CASH"
)

// PreEnrollment is one applicant's request to join one class. A multi-class
// submission produces sibling rows sharing the applicant fields; each row has
// its own token.
type PreEnrollment struct {
	ID      string           `db:"id" json:"id"`
	Token   string           `db:"token" json:"token"`
	UserID  string           `db:"user_id" json:"user_id"`
	ClassID string           `db:"class_id" json:"class_id"`
	Status  EnrollmentStatus `db:"status" json:"status"`

	FullName      string         `db:"full_name" json:"full_name"`
	Email         string         `db:"email" json:"email"`
	Age           *int           `db:"age" json:"age,omitempty"`
	Phone         *string        `db:"phone" json:"phone,omitempty"`
	Whatsapp      *string        `db:"whatsapp" json:"whatsapp,omitempty"`
	Instagram     *string        `db:"instagram" json:"instagram,omitempty"`
	CurrentSchool *string        `db:"current_school" json:"current_school,omitempty"`
	CurrentGrade  *string        `db:"current_grade" json:"current_grade,omitempty"`
	Objectives    pq.StringArray `db:"study_objectives" json:"study_objectives"`
	WritingLevel  *WritingLevel  `db:"writing_level" json:"writing_level,omitempty"`
	HasTakenENEM  bool           `db:"has_taken_enem" json:"has_taken_enem"`
	ENEMScore     *float64       `db:"enem_score" json:"enem_score,omitempty"`

	FatherName  string `db:"father_name" json:"father_name"`
	FatherPhone string `db:"father_phone" json:"father_phone"`
	MotherName  string `db:"mother_name" json:"mother_name"`
	MotherPhone string `db:"mother_phone" json:"mother_phone"`

	PlanID            *string        `db:"plan_id" json:"plan_id,omitempty"`
	PaymentMethod     *PaymentMethod `db:"payment_method" json:"payment_method,omitempty"`
	ConfirmationDate  *time.Time     `db:"confirmation_date" json:"confirmation_date,omitempty"`
	ConfirmationShift *ClassShift    `db:"confirmation_shift" json:"confirmation_shift,omitempty"`
	ConfirmationNotes *string        `db:"confirmation_notes" json:"confirmation_notes,omitempty"`

	InternalNotes *string   `db:"internal_notes" json:"internal_notes,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// PreEnrollmentDetail enriches PreEnrollment with class, subject and owner info.
type PreEnrollmentDetail struct {
	PreEnrollment
	ClassCode   string  `db:"class_code" json:"class_code"`
	ClassName   string  `db:"class_name" json:"class_name"`
	SubjectName string  `db:"subject_name" json:"subject_name"`
	PlanName    *string `db:"plan_name" json:"plan_name,omitempty"`
	OwnerName   string  `db:"owner_name" json:"owner_name"`
	OwnerEmail  string  `db:"owner_email" json:"owner_email"`
}

// BasicDataUpdate carries the owner-editable applicant fields. Nil means
// leave unchanged.
type BasicDataUpdate struct {
	FullName      *string
	Email         *string
	Age           *int
	Phone         *string
	Whatsapp      *string
	Instagram     *string
	CurrentSchool *string
	CurrentGrade  *string
}

// EnrollmentFilter provides filters for the staff listing.
type EnrollmentFilter struct {
	UserID    string
	ClassID   string
	Status    EnrollmentStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
