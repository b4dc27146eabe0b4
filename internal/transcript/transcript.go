// Package transcript renders an incoming message with the requests it was
// split into and the replies each request produced.
package transcript

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/store"
)

// Format returns the transcript of msg as text.
func Format(ctx context.Context, st store.Store, msg message.Incoming) (string, error) {
	var b strings.Builder
	if err := Write(ctx, &b, st, msg); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Write renders the transcript of msg to w. Each request is printed with
// its position, the message time and an underline as wide as its text,
// followed by its indented replies.
func Write(ctx context.Context, w io.Writer, st store.Store, msg message.Incoming) error {
	reqs, err := st.ListRequests(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("list requests: %w", err)
	}
	stamp := "-"
	if !msg.Time.IsZero() {
		stamp = msg.Time.Format(time.RFC3339Nano)
	}
	for i, req := range reqs {
		replies, err := st.ListReplies(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("list replies: %w", err)
		}
		fmt.Fprintf(w, "%d/%d %s\n", i+1, len(reqs), stamp)
		fmt.Fprintf(w, "--> %s\n", orEmpty(req.Text))
		fmt.Fprintf(w, "----%s\n", strings.Repeat("-", utf8.RuneCountInString(req.Text)))
		for j, out := range replies {
			fmt.Fprintf(w, "    %d/%d %s\n", j+1, len(replies), out.URI)
			fmt.Fprintf(w, "    <-- %s\n", orEmpty(out.Text))
		}
	}
	return nil
}

func orEmpty(text string) string {
	if text == "" {
		return "(empty)"
	}
	return text
}
