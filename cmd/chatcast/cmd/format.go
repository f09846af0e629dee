package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Dicklesworthstone/chatcast/internal/api"
	"github.com/Dicklesworthstone/chatcast/internal/broadcast"
)

// formatDurationShort renders an age with compact hours/minutes for CLI output.
func formatDurationShort(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}

	if d < time.Minute {
		return "<1m"
	}
	d = d.Round(time.Minute)

	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	switch {
	case hours >= 48:
		return fmt.Sprintf("%dd", hours/24)
	case hours <= 0:
		return fmt.Sprintf("%dm", mins)
	case mins == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
}

// formatElapsed renders a dispatch duration.
func formatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return "<1ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// outcomeDetail is the last column of an outcome row.
func outcomeDetail(o broadcast.Outcome) string {
	switch {
	case o.SearchURL != "":
		return o.SearchURL
	case o.SubmitPath != "":
		return "via " + string(o.SubmitPath)
	case o.Error != "":
		return o.Error
	case o.ErrorKind != "":
		return strings.ReplaceAll(string(o.ErrorKind), "_", " ")
	}
	return ""
}

func printResult(w io.Writer, res *broadcast.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATUS\tTIME\tDETAIL")
	for _, o := range res.Outcomes {
		status := string(o.Status)
		if o.ErrorKind != "" {
			status += " (" + string(o.ErrorKind) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.TargetID, status, formatElapsed(o.Duration), outcomeDetail(o))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nDelivered to %d of %d ready targets (cycle %s)\n",
		res.Delivered(), res.Attempted(), res.CycleID)
}

func printStatus(w io.Writer, st *api.StatusResponse) {
	polling := "idle"
	if st.ReadinessPolling {
		polling = "polling"
	}
	fmt.Fprintf(w, "Backend: %s\n", st.Backend)
	fmt.Fprintf(w, "Layout:  %s (zoom %.1f)\n", st.Layout, st.Zoom)
	fmt.Fprintf(w, "Enabled: %d (readiness %s)\n", st.EnabledCount, polling)
	if st.Busy {
		fmt.Fprintln(w, "A broadcast is in progress.")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTARGET\tNAME\tENABLED\tREADY\tURL")
	for i, t := range st.Targets {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, t.ID, t.DisplayName, yesNo(t.Enabled), yesNo(t.Ready), t.LastURL)
	}
	tw.Flush()

	if st.LastCycle != nil {
		fmt.Fprintf(w, "\nLast broadcast %s ago: %d of %d delivered\n",
			formatDurationShort(time.Since(st.LastCycle.FinishedAt)),
			st.LastCycle.Delivered(), st.LastCycle.Attempted())
	}
}

func printHistory(w io.Writer, entries []api.HistoryEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No broadcasts recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGE\tCYCLE\tTARGET\tSTATUS\tTIME\tDETAIL")
	for _, e := range entries {
		detail := e.Error
		if detail == "" && e.SubmitPath != "" {
			detail = "via " + e.SubmitPath
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatDurationShort(now.Sub(e.CreatedAt)),
			shortID(e.CycleID),
			e.TargetID,
			e.Status,
			formatElapsed(time.Duration(e.DurationMS)*time.Millisecond),
			detail)
	}
	tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
