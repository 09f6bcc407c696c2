package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zaltech/callops/internal/calls"
	"github.com/zaltech/callops/pkg/logging"
)

// CallSummaryService renders a call into a plain-text summary email and
// hands it to an EmailSender. It implements calls.SummarySender.
type CallSummaryService struct {
	sender EmailSender
	logger *logging.Logger
}

func NewCallSummaryService(sender EmailSender, logger *logging.Logger) *CallSummaryService {
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CallSummaryService{
		sender: sender,
		logger: logger.Component("notify.summary"),
	}
}

// SendCallSummary emails the transcript and extracted details of one call.
func (s *CallSummaryService) SendCallSummary(ctx context.Context, to string, detail *calls.CallDetail) error {
	if detail == nil || detail.ID == "" {
		return fmt.Errorf("notify: summary requires a call")
	}

	subject := fmt.Sprintf("Call summary: %s (%s)", displayNumber(detail), detail.Status)
	msg := EmailMessage{
		To:      to,
		Subject: subject,
		Body:    renderSummary(detail),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return err
	}
	s.logger.Info("call summary queued", "call_id", detail.ID, "to", to)
	return nil
}

func displayNumber(detail *calls.CallDetail) string {
	if detail.CallerNumber != "" {
		return detail.CallerNumber
	}
	return detail.ID
}

func renderSummary(detail *calls.CallDetail) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Call %s\n", detail.ID)
	fmt.Fprintf(&b, "Caller:   %s\n", displayNumber(detail))
	fmt.Fprintf(&b, "Status:   %s\n", detail.Status)
	if !detail.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started:  %s\n", detail.StartedAt.UTC().Format(time.RFC3339))
	}
	if detail.DurationSec > 0 {
		fmt.Fprintf(&b, "Duration: %ds\n", detail.DurationSec)
	}
	if detail.Outcome != "" {
		fmt.Fprintf(&b, "Outcome:  %s\n", detail.Outcome)
	}

	if ex := detail.Extraction; ex != nil {
		b.WriteString("\nExtracted details\n")
		if ex.CallerName != "" {
			fmt.Fprintf(&b, "  Name:      %s\n", ex.CallerName)
		}
		if ex.Service != "" {
			fmt.Fprintf(&b, "  Service:   %s\n", ex.Service)
		}
		if ex.DateISO != "" || ex.TimeISO != "" {
			fmt.Fprintf(&b, "  Requested: %s %s\n", ex.DateISO, ex.TimeISO)
		}
		fmt.Fprintf(&b, "  Confirmed: %t\n", ex.Confirmed)
	}

	if len(detail.Transcript) > 0 {
		b.WriteString("\nTranscript\n")
		for _, item := range detail.Transcript {
			fmt.Fprintf(&b, "  [%s] %s: %s\n",
				item.Timestamp.UTC().Format("15:04:05"), item.Speaker, item.Text)
		}
	}

	return b.String()
}
