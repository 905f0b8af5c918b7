package models

import "time"

// EducationLevel separates middle school and high school offerings.
type EducationLevel string

const (
	LevelMiddleSchool EducationLevel = "MIDDLE_SCHOOL"
	LevelHighSchool   EducationLevel = "HIGH_SCHOOL"
)

// ClassShift is the period of the day a class meets.
type ClassShift string

const (
	ShiftMorning   ClassShift = "MORNING"
	ShiftAfternoon ClassShift = "AFTERNOON"
	ShiftNight     ClassShift = "NIGHT"
)

// AvailabilityLabel classifies remaining seats for display. It is not
// admission control: a full class still accepts submissions.
type AvailabilityLabel string

const (
	AvailabilityOpen AvailabilityLabel = "OPEN"
	AvailabilityLow  AvailabilityLabel = "LOW"
	AvailabilityFull AvailabilityLabel = "FULL"
)

// LowSeatThreshold is the remaining-seat count at or under which a class is
// labelled LOW.
const LowSeatThreshold = 5

// Class is a scheduled offering of a subject with a fixed seat capacity.
// Occupancy is derived from enrollment counts, never stored on the row.
type Class struct {
	ID             string         `db:"id" json:"id"`
	Code           string         `db:"code" json:"code"`
	Name           string         `db:"name" json:"name"`
	SubjectID      string         `db:"subject_id" json:"subject_id"`
	EducationLevel EducationLevel `db:"education_level" json:"education_level"`
	DayOfWeek      string         `db:"day_of_week" json:"day_of_week"`
	StartTime      string         `db:"start_time" json:"start_time"`
	EndTime        string         `db:"end_time" json:"end_time"`
	MaxCapacity    int            `db:"max_capacity" json:"max_capacity"`
	Shift          ClassShift     `db:"shift" json:"shift"`
	Teacher        *string        `db:"teacher" json:"teacher,omitempty"`
	Location       *string        `db:"location" json:"location,omitempty"`
	Description    *string        `db:"description" json:"description,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with subject info and derived seat accounting.
type ClassDetail struct {
	Class
	SubjectName  string            `db:"subject_name" json:"subject_name"`
	SubjectType  string            `db:"subject_type" json:"subject_type"`
	Occupied     int               `db:"occupied" json:"occupied"`
	Availability AvailabilityLabel `json:"availability"`
}

// Occupancy reports derived seat usage for one class.
type Occupancy struct {
	ClassID  string `json:"class_id"`
	Current  int    `json:"current"`
	Max      int    `json:"max"`
}

// Label classifies the occupancy into OPEN, LOW or FULL.
func (o Occupancy) Label() AvailabilityLabel {
	remaining := o.Max - o.Current
	switch {
	case remaining <= 0:
		return AvailabilityFull
	case remaining <= LowSeatThreshold:
		return AvailabilityLow
	default:
		return AvailabilityOpen
	}
}
