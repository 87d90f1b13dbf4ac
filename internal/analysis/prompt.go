package analysis

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// SystemPrompt frames every provider as a market analyst.
const SystemPrompt = "You are an expert prediction market analyst. Provide precise probability estimates based on available evidence."

// BuildPrompt renders the analysis prompt for one market. The response
// contract is communicated in the text; nothing enforces it structurally.
func BuildPrompt(m domain.Market, t Taxonomy) string {
	var b strings.Builder

	b.WriteString("Analyze this prediction market and estimate the TRUE probability of the outcome.\n\n")
	fmt.Fprintf(&b, "Market: %s\n", m.Title)
	if m.Subtitle != "" {
		fmt.Fprintf(&b, "Details: %s\n", m.Subtitle)
	}
	if m.YesSubTitle != "" && m.YesSubTitle != m.Subtitle {
		fmt.Fprintf(&b, "Outcome: %s\n", m.YesSubTitle)
	}
	fmt.Fprintf(&b, "Category: %s\n", m.Category)
	fmt.Fprintf(&b, "Current Market Implied Probability: %.1f%%\n", m.ImpliedProbability()*100)
	if !m.CloseTime.IsZero() {
		fmt.Fprintf(&b, "Market Closes: %s\n", m.CloseTime.UTC().Format("2006-01-02"))
	}
	if m.RulesPrimary != "" {
		fmt.Fprintf(&b, "Rules: %s\n", m.RulesPrimary)
	}

	b.WriteString("\nBased on your knowledge of current events, historical patterns, and relevant data:\n\n")
	b.WriteString("1. What is your estimated TRUE probability (0-100%) that this outcome will occur?\n")
	b.WriteString("2. How confident are you in this estimate (0-100%)?\n")
	if t.KeyFactors {
		b.WriteString("3. What are the key factors influencing this probability?\n")
		b.WriteString("4. Based on the difference between your estimate and market price, what is your recommendation?\n")
	} else {
		b.WriteString("3. Based on the difference between your estimate and market price, what is your recommendation?\n")
	}

	vocab := fmt.Sprintf("%s|%s|%s", domain.RecommendationBuyYes, domain.RecommendationBuyNo, t.Neutral)
	b.WriteString("\nIMPORTANT: Respond in this exact JSON format:\n{\n")
	b.WriteString("  \"estimatedProbability\": <number 0-100>,\n")
	b.WriteString("  \"confidence\": <number 0-100>,\n")
	b.WriteString("  \"reasoning\": \"<brief explanation>\",\n")
	if t.KeyFactors {
		b.WriteString("  \"keyFactors\": [\"<factor1>\", \"<factor2>\", \"<factor3>\"],\n")
	}
	fmt.Fprintf(&b, "  \"recommendation\": \"<%s>\"\n}\n", vocab)

	b.WriteString("\nBe analytical and consider:\n")
	b.WriteString("- Base rates and historical precedent\n")
	b.WriteString("- Current news and developments\n")
	b.WriteString("- Potential for surprise outcomes\n")
	b.WriteString("- Time remaining until resolution")

	return b.String()
}
