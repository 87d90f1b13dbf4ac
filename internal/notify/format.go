package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// FormatPick renders a consensus result as a notification title and body.
func FormatPick(r domain.ConsensusResult) (string, string) {
	title := fmt.Sprintf("%s %s", strings.ToUpper(string(r.Recommendation)), r.Market.Ticker)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.Market.Title)
	if label := r.Market.OutcomeLabel(); label != "" && label != r.Market.Title {
		fmt.Fprintf(&b, "Outcome: %s\n", label)
	}
	fmt.Fprintf(&b, "Consensus %.1f%% vs market %.1f%% (edge %+.1f pts)\n",
		r.ConsensusProbability*100, r.ImpliedProbability*100, r.EdgePercentage)
	fmt.Fprintf(&b, "Confidence %.0f%%, mispricing %.2f\n", r.ConsensusConfidence*100, r.MispricingScore)
	for _, a := range r.Analyses {
		if a.Failed() {
			fmt.Fprintf(&b, "- %s: %s\n", a.Provider, a.Status)
			continue
		}
		fmt.Fprintf(&b, "- %s: %.1f%% (conf %.0f%%)\n", a.Provider, a.EstimatedProbability*100, a.Confidence*100)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// FormatScan summarises a finished scan, listing at most top results.
func FormatScan(s domain.ScanSummary, top int) (string, string) {
	if s.Err != "" {
		return "Scan failed", fmt.Sprintf("scan %s after %d markets: %s", s.ScanID, len(s.Results), s.Err)
	}

	title := fmt.Sprintf("Scan complete: %d markets", s.MarketCount)
	var b strings.Builder
	fmt.Fprintf(&b, "Took %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	for i, r := range s.Results {
		if i >= top {
			break
		}
		fmt.Fprintf(&b, "%d. %s %s edge %+.1f score %.2f\n",
			i+1, r.Market.Ticker, r.Recommendation, r.EdgePercentage, r.MispricingScore)
	}
	return title, strings.TrimRight(b.String(), "\n")
}
