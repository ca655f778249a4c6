package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue-scheduling/internal/appointment"
	"github.com/hackgods/clinic-queue-scheduling/internal/breaks"
	"github.com/hackgods/clinic-queue-scheduling/internal/schedule"
)

// AppointmentService is the booking surface the handlers drive.
type AppointmentService interface {
	RegisterPatient(ctx context.Context, in appointment.PatientInput) (*appointment.Patient, error)
	BookAdvanced(ctx context.Context, req appointment.AdvancedBookingRequest) (*appointment.Appointment, error)
	BookWalkIn(ctx context.Context, req appointment.WalkInRequest) (*appointment.Appointment, appointment.WalkInEstimate, error)
	PreviewWalkIn(ctx context.Context, doctor string) (appointment.WalkInEstimate, error)
	DayLedger(ctx context.Context, doctor, date string, f appointment.Filter) (appointment.Ledger, error)
	Board(ctx context.Context, doctor, date string) ([]appointment.BoardSlot, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to appointment.AppointmentStatus) (*appointment.Appointment, error)
	SetSkipped(ctx context.Context, id uuid.UUID, skipped bool) (*appointment.Appointment, error)
}

type BreakService interface {
	Propose(ctx context.Context, sel breaks.Selection) (breaks.Proposal, error)
	Confirm(ctx context.Context, sel breaks.Selection, choice breaks.ExtensionKind) (breaks.Proposal, breaks.Delta, error)
	Cancel(ctx context.Context, doctor, date, start string) (breaks.Delta, error)
}

type AvailabilityEditor interface {
	UpdateAvailability(ctx context.Context, name string, avail []schedule.DayAvailability, consultingMinutes int) (*schedule.Doctor, error)
}

func registerPatientHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterPatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		related := make([]uuid.UUID, 0, len(req.RelatedPatientIDs))
		for _, raw := range req.RelatedPatientIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "related_patient_ids must be valid UUIDs")
				return
			}
			related = append(related, id)
		}

		p, err := svc.RegisterPatient(r.Context(), appointment.PatientInput{
			Name:              req.Name,
			Age:               req.Age,
			Sex:               req.Sex,
			Phone:             req.Phone,
			RelatedPatientIDs: related,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPatientResponse(p))
	}
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.BookAdvanced(r.Context(), appointment.AdvancedBookingRequest{
			Doctor:    req.Doctor,
			PatientID: patientID,
			Date:      req.Date,
			Time:      req.Time,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func bookWalkInHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WalkInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, est, err := svc.BookWalkIn(r.Context(), appointment.WalkInRequest{Doctor: req.Doctor, PatientID: patientID})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toWalkInResponse(appt, est))
	}
}

func walkInEstimateHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		est, err := svc.PreviewWalkIn(r.Context(), doctorParam(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toWalkInResponse(nil, est))
	}
}

func dayLedgerHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := appointment.Filter{
			BookedVia: appointment.Channel(q.Get("booked_via")),
			Status:    appointment.AppointmentStatus(q.Get("status")),
		}
		if f.Status != "" && !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown status filter")
			return
		}

		ledger, err := svc.DayLedger(r.Context(), doctorParam(r), pathParam(r, "date"), f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(ledger))
	}
}

func boardHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board, err := svc.Board(r.Context(), doctorParam(r), pathParam(r, "date"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBoardResponse(board))
	}
}

func updateStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), id, appointment.AppointmentStatus(req.Status))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func skipHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		req := SkipRequest{Skipped: true}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := svc.SetSkipped(r.Context(), id, req.Skipped)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateAvailabilityHandler(doctors AvailabilityEditor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		d, err := doctors.UpdateAvailability(r.Context(), doctorParam(r), req.Availability, req.AverageConsultingTime)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(d))
	}
}

func proposeBreakHandler(svc BreakService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BreakRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		prop, err := svc.Propose(r.Context(), breaks.Selection{
			Doctor: doctorParam(r), Date: req.Date, Start: req.Start, End: req.End,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProposalResponse(prop))
	}
}

func confirmBreakHandler(svc BreakService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BreakRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		choice := breaks.ExtensionKind(req.Extension)
		if choice == "" {
			choice = breaks.ExtendNone
		}

		_, delta, err := svc.Confirm(r.Context(), breaks.Selection{
			Doctor: doctorParam(r), Date: req.Date, Start: req.Start, End: req.End,
		}, choice)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBreakResponse(delta))
	}
}

func cancelBreakHandler(svc BreakService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		delta, err := svc.Cancel(r.Context(), doctorParam(r), pathParam(r, "date"), pathParam(r, "start"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBreakResponse(delta))
	}
}

func doctorParam(r *http.Request) string {
	return pathParam(r, "doctor")
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{appointment.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{schedule.ErrInvalidAvailability, http.StatusBadRequest, "invalid_availability"},
	{breaks.ErrInvalidSelection, http.StatusBadRequest, "invalid_break_selection"},

	{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{schedule.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
	{breaks.ErrBreakNotFound, http.StatusNotFound, "break_not_found"},

	{appointment.ErrSlotTaken, http.StatusConflict, "slot_already_booked"},
	{appointment.ErrConflict, http.StatusConflict, "ledger_conflict"},
	{appointment.ErrLedgerBusy, http.StatusConflict, "ledger_busy"},

	{appointment.ErrNoAvailability, http.StatusUnprocessableEntity, "no_availability"},
	{breaks.ErrNoAvailability, http.StatusUnprocessableEntity, "no_availability"},
	{appointment.ErrNoWalkInSlots, http.StatusUnprocessableEntity, "no_walkin_slots"},
	{appointment.ErrOutsideBookingWindow, http.StatusUnprocessableEntity, "outside_booking_window"},
	{appointment.ErrSlotUnavailable, http.StatusUnprocessableEntity, "slot_unavailable"},
	{appointment.ErrInvalidStatusTransition, http.StatusUnprocessableEntity, "invalid_status_transition"},
	{appointment.ErrSkipNotAllowed, http.StatusUnprocessableEntity, "skip_not_allowed"},
	{breaks.ErrOverlapsBreak, http.StatusUnprocessableEntity, "overlaps_break"},
	{breaks.ErrInvalidExtension, http.StatusUnprocessableEntity, "invalid_extension"},
	{breaks.ErrCancelTooLate, http.StatusUnprocessableEntity, "cancel_too_late"},
}

// writeServiceError maps service errors onto HTTP responses. Anything not
// recognised is an infrastructure failure the caller may retry.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	if l := loggerFrom(r.Context()); l != nil {
		l.Error("request failed", "request_id", GetRequestID(r.Context()), "error", err)
	}
	writeError(w, http.StatusServiceUnavailable, "retry_later", "temporary failure, please retry")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
