package messages

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/nexarchive/internal/archive"
)

// FormatStatus renders a status projection for the terminal.
func FormatStatus(v archive.StatusView) string {
	b := &strings.Builder{}

	fmt.Fprintf(b, "📊 State: %s\n", v.State)
	if v.ChatID != 0 {
		title := v.ChatTitle
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(b, "💬 Chat: %s (%d)\n", title, v.ChatID)
	}
	if v.JobID != "" {
		fmt.Fprintf(b, "🆔 Job: %s\n", v.JobID)
	}
	fmt.Fprintf(b, "📦 Archived: %d/%d (%.1f%%), failed %d\n",
		v.ArchivedMessages, v.TotalMessages, v.Progress(), v.FailedMessages)
	fmt.Fprintf(b, "🧮 Batches: %d, this hour %d, today %d\n",
		v.BatchesCompleted, v.MessagesThisHour, v.MessagesToday)
	fmt.Fprintf(b, "💾 Bytes: %s (media %s)\n", HumanBytes(v.BytesProcessed), HumanBytes(v.MediaBytes))
	if v.NextAction != "" {
		fmt.Fprintf(b, "⏭  Next: %s in %ds\n", v.NextAction, v.NextActionInSeconds)
	}
	if v.RateLimitWaitSeconds > 0 {
		fmt.Fprintf(b, "⏳ Rate limit wait: %ds\n", v.RateLimitWaitSeconds)
	}
	if v.QueueSize > 0 {
		fmt.Fprintf(b, "📋 Queue: %d (%s)\n", v.QueueSize, v.QueueConfigMode)
	}
	if v.LastError != "" {
		fmt.Fprintf(b, "❌ Last error: %s\n", v.LastError)
	}
	return b.String()
}

// FormatQueue renders the pending queue, one chat per line.
func FormatQueue(entries []archive.QueueEntry) string {
	if len(entries) == 0 {
		return "📋 Queue is empty\n"
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "📋 Queue (%d):\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(b, "  %d. %d", i+1, e.ChatID)
		if e.QueuedAt != "" {
			fmt.Fprintf(b, " queued %s", e.QueuedAt)
		}
		if e.Config != nil {
			b.WriteString(" (own config)")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// HumanBytes formats a byte count with binary units.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
