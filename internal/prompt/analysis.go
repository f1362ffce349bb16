// Package prompt assembles the analysis prompt sent to the model and
// the deterministic fallback text used when generation fails. Both
// render the same fixed sections in a fixed order and never fail on
// empty context or an all-false signal set.
package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"memberlens/internal/metrics"
	"memberlens/internal/signal"
)

// maxRulesChars caps the rulebook context embedded in the prompt.
const maxRulesChars = 2000

// noRulesPlaceholder renders in place of an empty rulebook context so
// the section is never missing.
const noRulesPlaceholder = "No specific rules retrieved"

// dropKeywords mark a question as being about a membership decline.
var dropKeywords = []string{"drop", "lose", "decreas", "down", "fell", "decline"}

// BuildAnalysisPrompt renders the fixed-section analysis prompt:
// question, membership metrics, member movement, analytical signals,
// provider change count, rulebook context, and the task instruction.
// When the user asked about a drop but membership increased, a
// correction block is appended before the final reminder.
func BuildAnalysisPrompt(m metrics.Membership, s signal.Set, rulesText string, changeCount int, question string) string {
	p := message.NewPrinter(language.English)

	netPct := 0.0
	if m.PriorMembers > 0 {
		netPct = float64(s.NetChange) / float64(m.PriorMembers) * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: \"%s\"\n\n", question)
	fmt.Fprintf(&b, "You're analyzing membership data for %s. Here's what the data shows:\n\n", m.OrgCode)

	b.WriteString("**Membership Metrics:**\n")
	p.Fprintf(&b, "- Prior period (Nov 2025): %d members\n", m.PriorMembers)
	p.Fprintf(&b, "- Current period (Dec 2025): %d members\n", m.CurrentMembers)
	fmt.Fprintf(&b, "- Net change: %s members (%+.2f%% change)\n\n", signedCount(p, s.NetChange), netPct)

	b.WriteString("**Member Movement:**\n")
	p.Fprintf(&b, "- Dropped: %d members (%.2f%% of prior period)\n", s.DroppedCount, s.DroppedPct)
	p.Fprintf(&b, "- New: %d members (%.2f%% of prior period)\n", s.NewCount, s.NewPct)
	p.Fprintf(&b, "- Retroactive terminations: %d members\n\n", m.RetroTermCount)

	b.WriteString("**Analytical Signals:**\n")
	for _, insight := range insightLines(p, m, s) {
		fmt.Fprintf(&b, "- %s\n", insight)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "**Provider Configuration Changes:** %d change(s) detected\n\n", changeCount)

	b.WriteString("**Relevant Analysis Framework (from rulebook):**\n")
	b.WriteString(rulesSection(rulesText))
	b.WriteString("\n\n")

	b.WriteString(taskInstruction)

	if askedAboutDrop(question) && s.NetChange > 0 {
		b.WriteString("\n")
		b.WriteString(correctionBlock)
	}

	b.WriteString("\n")
	b.WriteString(finalReminder)

	return b.String()
}

// insightLines renders the active signals as short analytical clauses.
// False signals produce nothing; a fully quiet set yields an empty
// list, never an error.
func insightLines(p *message.Printer, m metrics.Membership, s signal.Set) []string {
	var insights []string

	hasDrop := s.DroppedCount > 0 && s.NetChange < 0
	hasIncrease := s.NetChange > 0

	switch {
	case hasIncrease && s.DroppedCount == 0:
		insights = append(insights, p.Sprintf(
			"KEY FINDING: Membership increased by %d members (%.2f%% growth). Zero members dropped.",
			s.NetChange, s.NewPct))
	case hasDrop:
		insights = append(insights, p.Sprintf(
			"KEY FINDING: Membership decreased by %d members (%.2f%% drop).",
			-s.NetChange, s.DroppedPct))
	case hasIncrease:
		insights = append(insights, p.Sprintf(
			"KEY FINDING: Membership increased by %d members (%.2f%% growth), despite %d members dropping.",
			s.NetChange, s.NewPct, s.DroppedCount))
	}

	if s.Movement {
		insights = append(insights,
			"ANALYTICAL SIGNAL: Membership movement detected - members were reassigned between organizations (moved_to/moved_from indicators present).")
	}

	if s.RetroDominant && s.DroppedCount > 0 {
		retroPct := float64(m.RetroTermCount) / float64(s.DroppedCount) * 100
		insights = append(insights, p.Sprintf(
			"ANALYTICAL SIGNAL: Retroactive terminations (%d members, %.1f%% of drops) suggest data corrections or backdated terminations.",
			m.RetroTermCount, retroPct))
	}

	if changed := configChangeNames(s, true); len(changed) > 0 {
		insights = append(insights, fmt.Sprintf(
			"ANALYTICAL SIGNAL: Provider configuration changes detected: %s. These mapping changes can re-attribute membership between organizations.",
			strings.Join(changed, ", ")))
	}

	if s.Churn {
		insights = append(insights,
			"ANALYTICAL PATTERN: High churn pattern detected - significant drops offset by significant additions, suggesting reclassification or member movement.")
	}

	return insights
}

// configChangeNames lists the active provider-key signals in fixed
// order. The termed-key entry only appears in the analysis prompt, not
// in the fallback cause list.
func configChangeNames(s signal.Set, includeTermedKey bool) []string {
	var names []string
	if s.NetworkIDChanged {
		names = append(names, "network ID mapping")
	}
	if s.PlanCarrierChanged {
		names = append(names, "plan carrier ID mapping")
	}
	if s.FileIDChanged {
		names = append(names, "file ID mapping")
	}
	if includeTermedKey && s.TermedKeyChanged {
		names = append(names, "termed key configuration")
	}
	return names
}

// rulesSection truncates the rulebook context and substitutes the
// placeholder when it is empty.
func rulesSection(rulesText string) string {
	if rulesText == "" {
		return noRulesPlaceholder
	}
	r := []rune(rulesText)
	if len(r) > maxRulesChars {
		return string(r[:maxRulesChars])
	}
	return rulesText
}

// askedAboutDrop reports whether the question reads as being about a
// membership decline.
func askedAboutDrop(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range dropKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// signedCount formats a count with an explicit sign and thousands
// separators, matching the "+1,234" style used across the analytics
// reports.
func signedCount(p *message.Printer, n int64) string {
	if n >= 0 {
		return "+" + p.Sprintf("%d", n)
	}
	return p.Sprintf("%d", n)
}

const taskInstruction = `**Your Task - Provide Analytical Reasoning:**

Answer the user's question by following this reasoning structure:

1. **State the facts** - Directly address their question and clearly state what the data shows
   - If they asked about a "drop" but membership increased, start by correcting this directly
   - State the key numbers: net change, prior vs current, dropped vs new members

2. **Explain the patterns** - Walk through what the numbers reveal
   - What does the movement (drops vs adds) tell you?
   - What patterns do you see in the data?

3. **Reason about the causes** - Explain WHY this happened based on the analytical signals
   - Connect the signals (movement, retroactive terminations, config changes) to likely causes
   - Explain how these signals relate to each other and to the membership change
   - Reference the rulebook framework to provide deeper context when relevant
   - Use causal reasoning: "Because [signal X], this likely means [explanation Y]"

4. **Provide insights** - What does this mean and why does it matter?
   - What are the implications of these patterns?
   - What insights can be drawn from this analysis?

5. **Be specific** - Use exact numbers, percentages, and signal details throughout your reasoning

IMPORTANT: Write exactly 4 paragraphs, each 2-3 lines long. Structure your response as follows:

Paragraph 1: Answer the question directly and state the key finding (what happened - increase/drop and by how much). 2-3 lines.

Paragraph 2: Explain the main cause/reason based on the data signals (connect the most relevant signals to what likely caused it). 2-3 lines.

Paragraph 3: Provide reasoning from the rulebook framework - reference the relevant rules/patterns from the rulebook context provided above that explain what's happening. 2-3 lines.

Paragraph 4: Conclude with the key insight or what this means for the organization. 2-3 lines.

Keep each paragraph concise (2-3 lines each, total ~100-120 words). Make sure Paragraph 3 specifically references the rulebook context provided.
`

const correctionBlock = `IMPORTANT CORRECTION: The user asked about a membership drop, but the data shows membership INCREASED.
Start your answer by directly and clearly correcting this: "Actually, membership didn't drop - it increased by [X] members ([Y]% growth)."
Then provide your analytical reasoning:
- Explain what the data actually shows (net increase)
- Analyze what drove the increase (new members, movement patterns, etc.)
- Reason through why this might have happened based on the signals
- Explain the discrepancy between the user's expectation and the actual data
`

const finalReminder = `Remember: Write exactly 4 paragraphs (each 2-3 lines). Paragraph 3 MUST reference the rulebook framework provided above. Keep it concise (~100-120 words total).
`
