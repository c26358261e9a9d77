package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haulpoint/backend-haul/internal/common"
	"github.com/haulpoint/backend-haul/internal/obs"
	"github.com/haulpoint/backend-haul/internal/queue"
	"github.com/haulpoint/backend-haul/internal/quote"
)

// QuoteStore captures the quote reads and writes the follow-up sender needs.
// Satisfied by quote.Store.
type QuoteStore interface {
	Get(ctx context.Context, id uuid.UUID) (quote.Request, error)
	MarkFollowedUp(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Followup consumes quote follow-up tasks and sends the staged email
// sequence. After the final stage the quote is marked expired.
type Followup struct {
	Quotes       QuoteStore
	Sender       common.EmailSender
	Logger       zerolog.Logger
	BusinessName string
	BookingURL   string
	Phone        string
	Now          func() time.Time
}

// Handle processes one follow-up task. A quote that moved past pending is
// acked without sending.
func (f Followup) Handle(ctx context.Context, t queue.Task) error {
	var task quote.FollowupTask
	if err := json.Unmarshal(t.Payload, &task); err != nil {
		// Unparseable payloads will never succeed; ack them.
		f.Logger.Error().Err(err).Msg("discarding malformed followup task")
		return nil
	}

	q, err := f.Quotes.Get(ctx, task.QuoteID)
	if err != nil {
		return fmt.Errorf("load quote %s: %w", task.QuoteID, err)
	}
	if q.Status != quote.StatusPending {
		return nil
	}
	if q.FollowupCount >= task.Stage {
		// Already sent, likely a redelivered task.
		return nil
	}

	subject, html := f.compose(task.Stage, q)
	if err := f.Sender.Send(q.CustomerEmail, subject, html); err != nil {
		if obs.FollowupEmailsTotal != nil {
			obs.FollowupEmailsTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("send followup %d for quote %s: %w", task.Stage, q.ID, err)
	}
	if obs.FollowupEmailsTotal != nil {
		obs.FollowupEmailsTotal.WithLabelValues("sent").Inc()
	}

	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	if err := f.Quotes.MarkFollowedUp(ctx, q.ID, now); err != nil {
		return fmt.Errorf("record followup for quote %s: %w", q.ID, err)
	}
	if task.Stage >= quote.FollowupStages {
		if err := f.Quotes.UpdateStatus(ctx, q.ID, quote.StatusExpired); err != nil {
			return fmt.Errorf("expire quote %s: %w", q.ID, err)
		}
	}

	f.Logger.Info().
		Str("quote_id", q.ID.String()).
		Int("stage", task.Stage).
		Str("email", q.CustomerEmail).
		Msg("followup sent")
	return nil
}

func (f Followup) compose(stage int, q quote.Request) (subject, html string) {
	name := f.BusinessName
	if name == "" {
		name = "HaulPoint Junk Removal"
	}
	booking := fmt.Sprintf("%s?quote=%s", f.BookingURL, q.ID)
	price := FormatMoney(q.EstimatedPrice)

	switch stage {
	case 1:
		subject = "Thanks for Your Quote Request!"
		html = fmt.Sprintf(`<h2>Hi %s!</h2>
<p>Thank you for requesting a quote from %s.</p>
<p><strong>Your Estimated Price: %s</strong></p>
<p>We're ready to help you reclaim your space. Book your service below:</p>
<p><a href="%s">Book Now</a></p>
<p>Questions? Call us at %s</p>`, q.CustomerName, name, price, booking, f.Phone)
	case 2:
		subject = "Still Need Help with Junk Removal?"
		html = fmt.Sprintf(`<h2>Hi %s,</h2>
<p>We noticed you haven't booked your junk removal service yet. We're here to help!</p>
<p><strong>Your Quote: %s</strong></p>
<p><a href="%s">Book Your Service</a></p>`, q.CustomerName, price, booking)
	case 3:
		discounted := FormatMoney(q.EstimatedPrice * 9 / 10)
		subject = "Special Offer: 10% Off Your Junk Removal"
		html = fmt.Sprintf(`<h2>Hi %s,</h2>
<p><strong>Limited Time Offer: Save 10%% on your junk removal!</strong></p>
<p>Original Quote: <s>%s</s></p>
<p>Your Price: <strong>%s</strong></p>
<p>This offer expires in 7 days.</p>
<p><a href="%s&discount=10">Claim Your Discount</a></p>`, q.CustomerName, price, discounted, booking)
	default:
		subject = "Last Chance: Your Quote is About to Expire"
		html = fmt.Sprintf(`<h2>Hi %s,</h2>
<p>This is our final reminder about your junk removal quote.</p>
<p>Your quote of <strong>%s</strong> will expire soon.</p>
<p>If you're still interested, we'd love to help.</p>
<p><a href="%s">Book Now</a></p>`, q.CustomerName, price, booking)
	}
	return subject, html
}

// FormatMoney renders minor units as a dollar string.
func FormatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
