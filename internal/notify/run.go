package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/chatrelay/internal/dispatch"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

// RunNotifier e-mails a short report when a conversation run finishes.
type RunNotifier struct {
	email  EmailSender
	to     string
	logger *logging.Logger
}

// NewRunNotifier returns nil when there is no sender or no recipient.
func NewRunNotifier(email EmailSender, to string, logger *logging.Logger) *RunNotifier {
	if email == nil || strings.TrimSpace(to) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RunNotifier{email: email, to: strings.TrimSpace(to), logger: logger}
}

// NotifyOutcome sends the report. A nil notifier does nothing.
func (n *RunNotifier) NotifyOutcome(ctx context.Context, outcome *dispatch.Outcome) error {
	if n == nil || outcome == nil {
		return nil
	}
	msg := EmailMessage{
		To:      n.to,
		Subject: outcomeSubject(outcome),
		Body:    outcomeText(outcome),
		HTML:    outcomeHTML(outcome),
	}
	if err := n.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: run report: %w", err)
	}
	n.logger.Info("run report sent", "run_id", outcome.RunID.String(), "to", n.to)
	return nil
}

func outcomeSubject(o *dispatch.Outcome) string {
	return fmt.Sprintf("[chatrelay] run %s in channel %s: %d/%d turns", o.Status, o.ChannelID, len(o.Sent), o.TotalTurns)
}

func outcomeLines(o *dispatch.Outcome) [][2]string {
	lines := [][2]string{
		{"Run", o.RunID.String()},
		{"Channel", o.ChannelID},
		{"Status", string(o.Status)},
		{"Turns sent", fmt.Sprintf("%d of %d", len(o.Sent), o.TotalTurns)},
		{"Duration", o.FinishedAt.Sub(o.StartedAt).Round(time.Second).String()},
	}
	if o.Err != nil {
		lines = append(lines, [2]string{"Error kind", string(dispatch.KindOf(o.Err))}, [2]string{"Error", o.Err.Error()})
	}
	return lines
}

func outcomeText(o *dispatch.Outcome) string {
	var sb strings.Builder
	for _, l := range outcomeLines(o) {
		fmt.Fprintf(&sb, "%s: %s\n", l[0], l[1])
	}
	return sb.String()
}

func outcomeHTML(o *dispatch.Outcome) string {
	var sb strings.Builder
	sb.WriteString("<table>")
	for _, l := range outcomeLines(o) {
		fmt.Fprintf(&sb, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", html.EscapeString(l[0]), html.EscapeString(l[1]))
	}
	sb.WriteString("</table>")
	return sb.String()
}
