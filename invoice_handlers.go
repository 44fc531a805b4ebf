package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

type InvoiceResponse struct {
	BookingID string    `json:"booking_id,omitempty"`
	Pax       PaxCounts `json:"pax"`
	Invoice   *Invoice  `json:"invoice"`
}

// InvoicePreviewRequest prices a booking draft before it is saved. Booking
// has the same loose shape as a fetched booking.
type InvoicePreviewRequest struct {
	Booking     map[string]interface{} `json:"booking"`
	FamilySizes []int                  `json:"family_sizes"`
}

// familyGroups validates requested sizes against the booking. No sizes means
// the booking's own families, if any.
//
// Hotel stays are charged to families by label, so requested sizes keep the
// booking's own labels in order. When the counts differ and a stay is
// labelled, there is no way to tell which family the stay belongs to and the
// request is rejected.
func familyGroups(sizes []int, booking *Booking) ([]FamilyGroup, error) {
	if len(sizes) == 0 {
		return nil, nil
	}
	if err := ValidateFamilySizes(sizes, booking.Pax.Total()); err != nil {
		return nil, err
	}

	if len(booking.Families) == len(sizes) {
		groups := make([]FamilyGroup, len(sizes))
		for i, size := range sizes {
			groups[i] = FamilyGroup{Label: booking.Families[i].Label, Size: size}
		}
		return groups, nil
	}

	for _, stay := range booking.Hotels {
		if strings.TrimSpace(stay.FamilyLabel) != "" {
			return nil, &ValidationError{
				Field: "families",
				Message: fmt.Sprintf("booking has %d families with labelled hotel stays, got %d sizes",
					len(booking.Families), len(sizes)),
			}
		}
	}
	return FamilyGroupsFromSizes(sizes), nil
}

func (s *Server) computeInvoice(booking *Booking, catalog Catalog, families []FamilyGroup) *Invoice {
	inv := s.aggregator.Compute(booking.InvoiceInput(catalog, families))
	mode := "single"
	if len(inv.Iterations) > 1 {
		mode = "family"
	}
	s.metrics.InvoicesTotal.WithLabelValues(mode).Inc()
	return inv
}

func (s *Server) handleBookingInvoice(w http.ResponseWriter, r *http.Request) {
	sess, err := GetSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bookingID := r.PathValue("id")
	if err := ValidateBookingID(bookingID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sizes, err := ParseFamilySizes(r.URL.Query().Get("families"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var (
		payload map[string]interface{}
		catalog Catalog
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		payload, err = s.api.FetchBooking(ctx, sess, bookingID)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = s.catalogs.Get(ctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		s.upstreamError(w, err, "failed to load booking")
		return
	}

	booking := NormalizeBooking(payload)
	families, err := familyGroups(sizes, booking)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	id := booking.ID
	if id == "" {
		id = bookingID
	}
	s.writeJSON(w, http.StatusOK, InvoiceResponse{
		BookingID: id,
		Pax:       booking.Pax,
		Invoice:   s.computeInvoice(booking, catalog, families),
	})
}

func (s *Server) handleInvoicePreview(w http.ResponseWriter, r *http.Request) {
	sess, err := GetSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req InvoicePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Booking == nil {
		http.Error(w, (&ValidationError{Field: "booking", Message: ErrEmptyField.Error()}).Error(), http.StatusBadRequest)
		return
	}

	booking := NormalizeBooking(req.Booking)
	families, err := familyGroups(req.FamilySizes, booking)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	catalog, err := s.catalogs.Get(r.Context(), sess)
	if err != nil {
		s.upstreamError(w, err, "failed to load catalog")
		return
	}

	s.writeJSON(w, http.StatusOK, InvoiceResponse{
		BookingID: booking.ID,
		Pax:       booking.Pax,
		Invoice:   s.computeInvoice(booking, catalog, families),
	})
}
