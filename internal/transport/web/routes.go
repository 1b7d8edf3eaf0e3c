package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stayware/booking/internal/booking"
	"github.com/stayware/booking/internal/catalog"
	"github.com/stayware/booking/internal/waitlist"
)

// bookRequest carries the admission input plus an optional waiting-list entry
// the guest is claiming after a spot-available notification.
type bookRequest struct {
	booking.BookInput
	WaitlistEntryID string `json:"waitlist_entry_id"`
}

type unavailableResponse struct {
	Message   string             `json:"message"`
	UnitID    string             `json:"unit_id"`
	Requested booking.Interval   `json:"requested"`
	Conflicts []booking.Interval `json:"conflicts"`
	Hint      string             `json:"hint"`
}

type cancelResponse struct {
	Status       string   `json:"status"`
	RefundAmount *float64 `json:"refund_amount,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.l.LogErrorf("Could not encode response: %v", err.Error())
	}
}

// writeError maps domain errors onto HTTP statuses. Unrecognized errors are
// logged and answered with a bare 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if inputErr := booking.IsInputError(err); inputErr != nil {
		s.writeJSON(w, http.StatusBadRequest, inputErr.Fields())

		return
	}

	if unavailableErr := booking.IsUnavailableError(err); unavailableErr != nil {
		s.writeJSON(w, http.StatusPreconditionFailed, unavailableResponse{
			Message:   "unit is unavailable for the requested interval",
			UnitID:    unavailableErr.UnitID,
			Requested: unavailableErr.Requested,
			Conflicts: unavailableErr.Conflicts,
			Hint:      "join the waiting list via POST /api/waitlist/v1",
		})

		return
	}

	switch {
	case errors.Is(err, waitlist.ErrDuplicateEntry):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, booking.ErrRecordNotFound),
		errors.Is(err, waitlist.ErrEntryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, booking.ErrConcurrencyConflict):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.l.LogErrorf("Unhandled error: %v", err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) bookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		http.Error(w, "Idempotency-Key header is missing", http.StatusBadRequest)

		return
	}

	var req bookRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return
	}

	ctx = booking.NewContextWithIdempotencyKey(ctx, idempotencyKey)

	res, err := s.bManager.RequestBooking(ctx, &req.BookInput)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if req.WaitlistEntryID != "" {
		if err := s.wManager.MarkBooked(ctx, req.WaitlistEntryID); err != nil {
			s.l.LogWarnf("Could not mark waitlist entry %v booked: %v", req.WaitlistEntryID, err.Error())
		}
	}

	s.writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	reservations, err := s.bManager.ListByGuest(r.Context(), r.URL.Query().Get("guest_id"))
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, reservations)
}

func (s *Server) cancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reservationID := r.PathValue("id")

	res, err := s.bManager.Get(ctx, reservationID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.bManager.Cancel(ctx, reservationID); err != nil {
		s.writeError(w, err)

		return
	}

	out := cancelResponse{Status: string(booking.ReservationCancelled)} //nolint:exhaustruct

	// The refund quote is advisory. A missing unit record does not block
	// the cancellation itself.
	if unit, err := s.units.Get(ctx, res.UnitID); err != nil {
		s.l.LogWarnf("Could not quote refund for unit %v: %v", res.UnitID, err.Error())
	} else {
		quote := unit.CancellationPolicy.RefundQuote(res.Interval.CheckIn, res.TotalAmount, time.Now().UTC())
		out.RefundAmount = &quote
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) joinWaitlistHandler(w http.ResponseWriter, r *http.Request) {
	var input waitlist.JoinInput

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return
	}

	entry, err := s.wManager.Join(r.Context(), &input)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) listWaitlistHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	entries, err := s.wManager.ListByGuest(r.Context(), query.Get("guest_id"), query.Get("unit_id"))
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) searchUnitsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := catalog.Filter{
		Query:    query.Get("query"),
		Location: query.Get("location"),
	}

	inputErr := booking.NewInputError()

	for field, dst := range map[string]*float64{
		"min_price": &filter.MinPrice,
		"max_price": &filter.MaxPrice,
	} {
		raw := query.Get(field)
		if raw == "" {
			continue
		}

		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			inputErr.AddError(field, "provide a number")

			continue
		}

		*dst = price
	}

	if inputErr.HasErrors() {
		s.writeError(w, inputErr)

		return
	}

	units, err := s.units.Search(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, units)
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addRoutes(r *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		r.Handle(pattern, s.applyMiddlewares(h, s.loggerMiddleware(), s.recoverMiddleware()))
	}

	handle("POST /api/bookings/v1", s.bookHandler)
	handle("GET /api/bookings/v1", s.listBookingsHandler)
	handle("DELETE /api/bookings/v1/{id}", s.cancelBookingHandler)
	handle("POST /api/waitlist/v1", s.joinWaitlistHandler)
	handle("GET /api/waitlist/v1", s.listWaitlistHandler)
	handle("GET /api/units/v1", s.searchUnitsHandler)
	handle(fmt.Sprintf("GET %s", s.conf.LivenessEndpoint), s.livenessHandler)
}
