package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haulpoint/backend-haul/internal/pricing"
	"github.com/haulpoint/backend-haul/internal/queue"
)

// followupSchedule holds the delay after submission for each follow-up stage.
// Stage n is due once schedule[n-1] has elapsed and n-1 follow-ups were sent.
var followupSchedule = []time.Duration{
	24 * time.Hour,
	3 * 24 * time.Hour,
	7 * 24 * time.Hour,
	14 * 24 * time.Hour,
}

// FollowupStages is the length of the follow-up sequence.
const FollowupStages = 4

// FollowupTask is the queue payload for one follow-up email.
type FollowupTask struct {
	QuoteID        uuid.UUID `json:"quoteId"`
	Stage          int       `json:"stage"`
	CustomerName   string    `json:"customerName"`
	CustomerEmail  string    `json:"customerEmail"`
	EstimatedPrice int64     `json:"estimatedPrice"`
}

// Enqueuer publishes background tasks. Satisfied by queue.Enqueuer.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// SubmitLine is one cart line of an inbound quote request.
type SubmitLine struct {
	ItemID   uuid.UUID `json:"itemId" validate:"required"`
	Quantity int       `json:"quantity" validate:"min=1"`
}

// SubmitRequest is the inbound quote submission payload.
type SubmitRequest struct {
	CustomerName   string       `json:"customerName" validate:"required,max=120"`
	CustomerEmail  string       `json:"customerEmail" validate:"required,email"`
	CustomerPhone  string       `json:"customerPhone" validate:"omitempty,max=32"`
	ServiceAddress string       `json:"serviceAddress" validate:"required,max=300"`
	Notes          string       `json:"notes" validate:"omitempty,max=2000"`
	Items          []SubmitLine `json:"items" validate:"required,min=1,dive"`
}

// ValidationError carries per-field failures for a rejected submission.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("quote: invalid submission (%d field errors)", len(e.Fields))
}

// Service prices, persists and schedules follow-up for quote requests.
type Service struct {
	Pricing *pricing.Service
	Store   Store
	Queue   Enqueuer
	Logger  zerolog.Logger
	Now     func() time.Time

	validate *validator.Validate
}

// NewService constructs a quote Service.
func NewService(p *pricing.Service, store Store, q Enqueuer, logger zerolog.Logger) (*Service, error) {
	if p == nil {
		return nil, errors.New("quote: pricing service is required")
	}
	if store == nil {
		return nil, errors.New("quote: store is required")
	}
	return &Service{
		Pricing:  p,
		Store:    store,
		Queue:    q,
		Logger:   logger,
		Now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Submitted pairs the persisted request with the estimate returned to the
// customer.
type Submitted struct {
	Request  Request          `json:"request"`
	Estimate pricing.Estimate `json:"estimate"`
}

// Submit validates the payload, prices the cart, persists the request and
// schedules the first follow-up email. A queue outage does not fail the
// submission.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Submitted, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	req.ServiceAddress = strings.TrimSpace(req.ServiceAddress)

	if err := s.validate.Struct(req); err != nil {
		return Submitted{}, asValidationError(err)
	}

	cart := make([]pricing.CartLine, 0, len(req.Items))
	for _, line := range req.Items {
		cart = append(cart, pricing.CartLine{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	est, err := s.Pricing.EstimateCart(ctx, cart)
	if err != nil {
		return Submitted{}, err
	}

	items, err := json.Marshal(est.Items)
	if err != nil {
		return Submitted{}, fmt.Errorf("serialize quote items: %w", err)
	}
	now := s.now()
	record := Request{
		ID:             uuid.New(),
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		ServiceAddress: req.ServiceAddress,
		Items:          items,
		Volume:         est.Breakdown.Volume,
		EstimatedPrice: est.Breakdown.Total,
		LoadSize:       string(est.Breakdown.LoadSize),
		Notes:          strings.TrimSpace(req.Notes),
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Store.Insert(ctx, record); err != nil {
		return Submitted{}, err
	}

	if err := s.enqueueFollowup(ctx, record, 1, followupSchedule[0]); err != nil {
		s.Logger.Warn().Err(err).Str("quote_id", record.ID.String()).Msg("followup enqueue failed")
	}
	return Submitted{Request: record, Estimate: est}, nil
}

// UpdateStatus moves a quote request to a new lifecycle state.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if !ValidStatus(status) {
		return &ValidationError{Fields: map[string]string{"status": "unknown status " + status}}
	}
	return s.Store.UpdateStatus(ctx, id, status)
}

// List returns quote requests for the admin dashboard, newest first.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Request, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !ValidStatus(status) {
		return nil, &ValidationError{Fields: map[string]string{"status": "unknown status " + status}}
	}
	return s.Store.List(ctx, status, limit, offset)
}

// SweepFollowups enqueues one due follow-up email per pending quote. The
// dedup key on (quote, stage) makes overlapping sweeps harmless.
func (s *Service) SweepFollowups(ctx context.Context) error {
	now := s.now()
	due, err := s.Store.ListNeedingFollowup(ctx, now.Add(-followupSchedule[0]), FollowupStages)
	if err != nil {
		return err
	}
	for _, q := range due {
		stage := q.FollowupCount + 1
		if stage > FollowupStages {
			continue
		}
		if now.Before(q.CreatedAt.Add(followupSchedule[stage-1])) {
			continue
		}
		if err := s.enqueueFollowup(ctx, q, stage, 0); err != nil {
			s.Logger.Warn().Err(err).Str("quote_id", q.ID.String()).Int("stage", stage).Msg("followup enqueue failed")
		}
	}
	return nil
}

func (s *Service) enqueueFollowup(ctx context.Context, q Request, stage int, delay time.Duration) error {
	if s.Queue == nil {
		return nil
	}
	payload, err := json.Marshal(FollowupTask{
		QuoteID:        q.ID,
		Stage:          stage,
		CustomerName:   q.CustomerName,
		CustomerEmail:  q.CustomerEmail,
		EstimatedPrice: q.EstimatedPrice,
	})
	if err != nil {
		return err
	}
	return s.Queue.Enqueue(ctx, queue.Task{
		Kind:     queue.KindQuoteFollowup,
		Payload:  payload,
		DedupKey: fmt.Sprintf("%s:%d", q.ID, stage),
		Delay:    delay,
	})
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func asValidationError(err error) error {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return err
	}
	fields := make(map[string]string, len(invalid))
	for _, fe := range invalid {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
