package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "Pending"
	StatusConfirmed AppointmentStatus = "Confirmed"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
	StatusNoShow    AppointmentStatus = "No-show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses free nothing up and accept no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Channel string

const (
	ChannelAdvanced Channel = "Advanced Booking"
	ChannelWalkIn   Channel = "Walk-in"
)

// Prefix is the letter that leads a token number on this channel.
func (c Channel) Prefix() string {
	if c == ChannelWalkIn {
		return "W"
	}
	return "A"
}

// Arrival windows around a slot.
const (
	CutOffLead  = 15 * time.Minute
	NoShowGrace = 15 * time.Minute
)

type Patient struct {
	ID                uuid.UUID
	Name              string
	Age               int
	Sex               string
	Phone             string
	ClinicIDs         []string
	RelatedPatientIDs []uuid.UUID
	TotalAppointments int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// VisitEntry is one line of a patient's append-only visit history.
type VisitEntry struct {
	AppointmentID uuid.UUID
	Date          string
	Time          string
	Doctor        string
	Department    string
	Status        AppointmentStatus
	Treatment     string
}

type Appointment struct {
	ID           uuid.UUID
	ClinicID     string
	Doctor       string // doctor name; every ledger query matches on it
	Department   string
	PatientID    uuid.UUID
	PatientName  string
	Date         string // schedule.DateLayout
	Time         string // schedule.TimeLayout
	Status       AppointmentStatus
	IsSkipped    bool
	BookedVia    Channel
	TokenNumber  string
	NumericToken int
	SlotIndex    int
	ScheduledAt  time.Time
	ArriveBy     time.Time
	CutOff       time.Time
	NoShowAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Appointment) IsWalkIn() bool {
	return a.BookedVia == ChannelWalkIn
}

// Occupies reports whether the appointment still holds its slot.
func (a Appointment) Occupies() bool {
	return a.Status != StatusCancelled && a.Status != StatusNoShow
}

// InQueue reports whether the patient is still waiting to be seen.
func (a Appointment) InQueue() bool {
	return !a.Status.Terminal() && !a.IsSkipped
}

// SlotOn resolves the stored slot time against day.
func (a Appointment) SlotOn(day time.Time) (time.Time, error) {
	return schedule.At(day, a.Time)
}

// WithDerivedTimes sets ArriveBy, CutOff and NoShowAt from the slot instant
// pushed out by shift.
func (a Appointment) WithDerivedTimes(slot time.Time, shift time.Duration) Appointment {
	a.ArriveBy = slot.Add(shift)
	a.CutOff = a.ArriveBy.Add(-CutOffLead)
	a.NoShowAt = a.ArriveBy.Add(NoShowGrace)
	return a
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
