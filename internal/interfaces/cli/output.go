package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/pkg/client"
)

const titleWidth = 60

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(headers)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func riskLabel(r priorart.RiskLevel) string {
	switch r {
	case priorart.RiskHigh:
		return color.RedString(string(r))
	case priorart.RiskMedium:
		return color.YellowString(string(r))
	default:
		return color.GreenString(string(r))
	}
}

func statusLabel(s client.JobStatus) string {
	switch s {
	case client.StatusCompleted:
		return color.GreenString(string(s))
	case client.StatusFailed:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func renderStatus(w io.Writer, v *client.AnalysisStatus, top int) {
	fmt.Fprintf(w, "Job:     %s\n", v.JobID)
	fmt.Fprintf(w, "Status:  %s\n", statusLabel(v.Status))
	if v.Cause != "" {
		fmt.Fprintf(w, "Cause:   %s\n", v.Cause)
	}
	fmt.Fprintf(w, "Created: %s\n", v.CreatedAt.UTC().Format(time.RFC3339))
	if v.CompletedAt != nil {
		fmt.Fprintf(w, "Done:    %s\n", formatTimePtr(v.CompletedAt))
	}
	if v.Result != nil {
		fmt.Fprintln(w)
		renderResult(w, v.Result, top)
	}
}

func renderResult(w io.Writer, r *analysis.Result, top int) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s %s (%s)\n", bold("Recommendation:"), r.Overall.InvestmentRecommendation, r.Overall.RiskAssessment)
	fmt.Fprintf(w, "TRL %d (%s), %s, time to market %s\n", r.TRL.Level, r.TRL.Category, r.TRL.MarketReadiness, r.TRL.TimeToMarket)
	fmt.Fprintf(w, "Market: %s  TAM %.1fB  SAM %.1fB  SOM %.2fB  CAGR %.1f%%\n",
		r.Market.Domain, r.Market.TAM, r.Market.SAM, r.Market.SOM, r.Market.CAGR)
	fmt.Fprintf(w, "Market gap: %s (%.2f)  IP strength: %.1f/10 %s\n",
		r.MarketGap.Status, r.MarketGap.Score, r.IPStrength.Score, r.IPStrength.Label)
	fmt.Fprintf(w, "Landscape: %s competition, %d assignees, threat %s, position %s\n",
		r.Landscape.Intensity, r.Landscape.DistinctAssignees, r.Landscape.ThreatLevel, r.Landscape.MarketPosition)
	fmt.Fprintf(w, "Novelty: %.2f %s, patentability %s, %d conflicts\n",
		r.Novelty.Score, r.Novelty.Category, r.Novelty.Patentability, r.Novelty.PriorArtConflicts)
	fmt.Fprintf(w, "Opportunity score: %.1f  Market potential: %.1f\n", r.Overall.OpportunityScore, r.Overall.MarketPotential)
	if len(r.Landscape.PotentialLicensees) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Potential licensees"))
		for _, l := range r.Landscape.PotentialLicensees {
			fmt.Fprintf(w, "  - %s (%s): %d patents, max %.3f, %s\n", l.Name, l.EntityType, l.Matches, l.MaxScore, l.EstimatedValue)
		}
	}

	renderRanked(w, "Patents", r.Patents, top)
	renderRanked(w, "Publications", r.Publications, top)

	if len(r.Recommendations) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Recommendations"))
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}

func renderRanked(w io.Writer, heading string, docs []priorart.ScoredDocument, top int) {
	fmt.Fprintf(w, "\n%s (%d)\n", color.New(color.Bold).Sprint(heading), len(docs))
	if len(docs) == 0 {
		return
	}
	if top > 0 && len(docs) > top {
		docs = docs[:top]
	}
	t := newTable(w, "#", "Identifier", "Title", "Date", "Assignee", "Score", "Risk")
	for i, sd := range docs {
		t.Append([]string{
			fmt.Sprintf("%d", i+1),
			sd.Document.Identifier,
			truncate(sd.Document.Title, titleWidth),
			formatDate(sd.Document.Date),
			sd.Document.SourceOrAssignee,
			fmt.Sprintf("%.3f", sd.Score),
			riskLabel(sd.Risk),
		})
	}
	t.Render()
}

func renderAlerts(w io.Writer, alerts []client.AlertView) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts.")
		return
	}
	t := newTable(w, "ID", "Title", "Status", "Frequency", "Threshold", "Notifications", "Next evaluation")
	for _, a := range alerts {
		if a.Alert == nil {
			continue
		}
		t.Append([]string{
			a.ID,
			truncate(a.Profile.Title, 40),
			string(a.Status),
			string(a.Frequency),
			fmt.Sprintf("%.2f", a.SimilarityThreshold),
			fmt.Sprintf("%d", a.NotificationCount),
			formatTimePtr(a.NextEvaluationAt),
		})
	}
	t.Render()
}

func renderAlert(w io.Writer, a *client.AlertView) {
	if a == nil || a.Alert == nil {
		return
	}
	sources := make([]string, len(a.Sources))
	for i, s := range a.Sources {
		sources[i] = string(s)
	}
	fmt.Fprintf(w, "Alert:      %s\n", a.ID)
	fmt.Fprintf(w, "Title:      %s\n", a.Profile.Title)
	fmt.Fprintf(w, "Status:     %s\n", a.Status)
	fmt.Fprintf(w, "Sources:    %s\n", strings.Join(sources, ", "))
	fmt.Fprintf(w, "Threshold:  %.2f  Lookback: %d days  Frequency: %s\n", a.SimilarityThreshold, a.LookbackDays, a.Frequency)
	fmt.Fprintf(w, "Next run:   %s\n", formatTimePtr(a.NextEvaluationAt))
}

func renderNotifications(w io.Writer, items []*client.Notification) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return
	}
	t := newTable(w, "ID", "Alert", "Document", "Title", "Date", "Score", "Read")
	for _, n := range items {
		read := ""
		if n.Read {
			read = "yes"
		}
		t.Append([]string{
			n.ID,
			n.AlertID,
			fmt.Sprintf("%s %s", n.DocumentType, n.DocumentIdentifier),
			truncate(n.DocumentTitle, 50),
			formatDate(n.DocumentDate),
			fmt.Sprintf("%.3f", n.SimilarityScore),
			read,
		})
	}
	t.Render()
}

func renderReport(w io.Writer, r *client.EvaluationReport) {
	fmt.Fprintf(w, "Due: %d  Evaluated: %d  Notified: %d  Published: %d  Conflicts: %d  Failed: %d  (%s)\n",
		r.Due, r.Evaluated, r.Notified, r.Published, r.Conflicts, r.Failed, r.Duration.Round(time.Millisecond))
}
