package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue-scheduling/internal/appointment"
	"github.com/hackgods/clinic-queue-scheduling/internal/breaks"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

type RegisterPatientRequest struct {
	Name              string   `json:"name"`
	Age               int      `json:"age"`
	Sex               string   `json:"sex"`
	Phone             string   `json:"phone"`
	RelatedPatientIDs []string `json:"related_patient_ids,omitempty"`
}

type PatientResponse struct {
	ID                uuid.UUID   `json:"id"`
	Name              string      `json:"name"`
	Age               int         `json:"age"`
	Sex               string      `json:"sex"`
	Phone             string      `json:"phone"`
	ClinicIDs         []string    `json:"clinic_ids"`
	RelatedPatientIDs []uuid.UUID `json:"related_patient_ids,omitempty"`
	TotalAppointments int         `json:"total_appointments"`
}

type BookAppointmentRequest struct {
	Doctor    string `json:"doctor"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type WalkInRequest struct {
	Doctor    string `json:"doctor"`
	PatientID string `json:"patient_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type SkipRequest struct {
	Skipped bool `json:"skipped"`
}

type AvailabilityRequest struct {
	AverageConsultingTime int                        `json:"average_consulting_time"`
	Availability          []schedule.DayAvailability `json:"availability"`
}

type BreakRequest struct {
	Date      string `json:"date"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Extension string `json:"extension,omitempty"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	ClinicID     string    `json:"clinic_id"`
	Doctor       string    `json:"doctor"`
	Department   string    `json:"department"`
	PatientID    uuid.UUID `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Status       string    `json:"status"`
	IsSkipped    bool      `json:"is_skipped"`
	BookedVia    string    `json:"booked_via"`
	TokenNumber  string    `json:"token_number"`
	NumericToken int       `json:"numeric_token"`
	SlotIndex    int       `json:"slot_index"`
	ArriveBy     time.Time `json:"arrive_by"`
	CutOff       time.Time `json:"cut_off"`
	NoShowAt     time.Time `json:"no_show_at"`
}

type WalkInResponse struct {
	Appointment   *AppointmentResponse `json:"appointment,omitempty"`
	EstimatedTime string               `json:"estimated_time"`
	PatientsAhead int                  `json:"patients_ahead"`
	NumericToken  int                  `json:"numeric_token"`
	SlotIndex     int                  `json:"slot_index"`
	Placement     string               `json:"placement"`
}

type BoardSlotResponse struct {
	Index       int                  `json:"index"`
	Time        string               `json:"time"`
	Status      string               `json:"status"`
	OnBreak     bool                 `json:"on_break"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
}

type ExtensionOptionResponse struct {
	Kind    string `json:"kind"`
	Minutes int    `json:"minutes"`
	NewEnd  string `json:"new_end"`
	Label   string `json:"label"`
}

type ProposalResponse struct {
	Start           string                    `json:"start"`
	End             string                    `json:"end"`
	DurationMinutes int                       `json:"duration_minutes"`
	LastTokenBefore string                    `json:"last_token_before,omitempty"`
	LastTokenAfter  string                    `json:"last_token_after,omitempty"`
	HasOverrun      bool                      `json:"has_overrun"`
	OverrunMinutes  int                       `json:"overrun_minutes"`
	Options         []ExtensionOptionResponse `json:"options"`
}

type BreakResponse struct {
	Date      string                `json:"date"`
	Start     string                `json:"start"`
	End       string                `json:"end"`
	Extension *schedule.Extension   `json:"extension,omitempty"`
	Affected  []AppointmentResponse `json:"affected_appointments"`
}

type DoctorResponse struct {
	ID                    uuid.UUID                     `json:"id"`
	Name                  string                        `json:"name"`
	Department            string                        `json:"department"`
	AverageConsultingTime int                           `json:"average_consulting_time"`
	Availability          []schedule.DayAvailability    `json:"availability"`
	Extensions            map[string]schedule.Extension `json:"availability_extensions"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		ClinicID:     a.ClinicID,
		Doctor:       a.Doctor,
		Department:   a.Department,
		PatientID:    a.PatientID,
		PatientName:  a.PatientName,
		Date:         a.Date,
		Time:         a.Time,
		Status:       string(a.Status),
		IsSkipped:    a.IsSkipped,
		BookedVia:    string(a.BookedVia),
		TokenNumber:  a.TokenNumber,
		NumericToken: a.NumericToken,
		SlotIndex:    a.SlotIndex,
		ArriveBy:     a.ArriveBy,
		CutOff:       a.CutOff,
		NoShowAt:     a.NoShowAt,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toPatientResponse(p *appointment.Patient) PatientResponse {
	return PatientResponse{
		ID:                p.ID,
		Name:              p.Name,
		Age:               p.Age,
		Sex:               p.Sex,
		Phone:             p.Phone,
		ClinicIDs:         p.ClinicIDs,
		RelatedPatientIDs: p.RelatedPatientIDs,
		TotalAppointments: p.TotalAppointments,
	}
}

func toWalkInResponse(a *appointment.Appointment, est appointment.WalkInEstimate) WalkInResponse {
	resp := WalkInResponse{
		EstimatedTime: est.EstimatedTime.Format(schedule.TimeLayout),
		PatientsAhead: est.PatientsAhead,
		NumericToken:  est.NumericToken,
		SlotIndex:     est.SlotIndex,
		Placement:     est.Branch,
	}
	if a != nil {
		ar := toAppointmentResponse(*a)
		resp.Appointment = &ar
	}
	return resp
}

func toBoardResponse(board []appointment.BoardSlot) []BoardSlotResponse {
	out := make([]BoardSlotResponse, 0, len(board))
	for _, s := range board {
		row := BoardSlotResponse{
			Index:   s.Index,
			Time:    s.Time.Format(schedule.TimeLayout),
			Status:  string(s.Status),
			OnBreak: s.OnBreak,
		}
		if s.Appointment != nil {
			ar := toAppointmentResponse(*s.Appointment)
			row.Appointment = &ar
		}
		out = append(out, row)
	}
	return out
}

func toProposalResponse(p breaks.Proposal) ProposalResponse {
	resp := ProposalResponse{
		Start:           p.Start.Format(schedule.TimeLayout),
		End:             p.End.Format(schedule.TimeLayout),
		DurationMinutes: int(p.Duration / time.Minute),
		HasOverrun:      p.HasOverrun(),
		OverrunMinutes:  int(p.Overrun / time.Minute),
	}
	if !p.LastTokenBefore.IsZero() {
		resp.LastTokenBefore = p.LastTokenBefore.Format(schedule.TimeLayout)
		resp.LastTokenAfter = p.LastTokenAfter.Format(schedule.TimeLayout)
	}
	for _, o := range p.Options {
		resp.Options = append(resp.Options, ExtensionOptionResponse{
			Kind:    string(o.Kind),
			Minutes: o.Minutes,
			NewEnd:  o.NewEnd.Format(schedule.TimeLayout),
			Label:   o.Label,
		})
	}
	return resp
}

func toBreakResponse(d breaks.Delta) BreakResponse {
	return BreakResponse{
		Date:      schedule.DateLabel(d.Day),
		Start:     d.Break.Start.Format(schedule.TimeLayout),
		End:       d.Break.End.Format(schedule.TimeLayout),
		Extension: d.Extension,
		Affected:  toAppointmentResponses(d.Appointments),
	}
}

func toDoctorResponse(d *schedule.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:                    d.ID,
		Name:                  d.Name,
		Department:            d.Department,
		AverageConsultingTime: d.AverageConsultingTime,
		Availability:          d.Availability,
		Extensions:            d.Extensions,
	}
}
