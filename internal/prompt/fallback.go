package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"memberlens/internal/metrics"
	"memberlens/internal/signal"
)

// BuildFallbackText renders a deterministic plain-text analysis from
// the metrics and signals alone. The orchestrator uses it verbatim
// when the model is unreachable or generation fails, so it must never
// error and must read sensibly for any signal combination.
func BuildFallbackText(m metrics.Membership, s signal.Set, question string) string {
	p := message.NewPrinter(language.English)

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis for %s:\n\n", m.OrgCode)
	b.WriteString(factsSentence(p, m, s, question))
	b.WriteString(movementParagraph(p, s))
	b.WriteString(causesParagraph(p, m, s))
	if s.Churn {
		b.WriteString("\n\nThis pattern of high drops offset by high additions (churn pattern) typically indicates member reclassification or movement between organizations rather than actual membership loss.")
	}
	return b.String()
}

func factsSentence(p *message.Printer, m metrics.Membership, s signal.Set, question string) string {
	pct := 0.0
	if m.PriorMembers > 0 {
		pct = float64(s.NetChange) / float64(m.PriorMembers) * 100
	}

	mentionsDrop := strings.Contains(strings.ToLower(question), "drop")
	switch {
	case mentionsDrop && s.NetChange > 0:
		return p.Sprintf("Actually, membership didn't drop - it increased by %d members (%.2f%% growth). The organization grew from %d to %d members. ",
			s.NetChange, s.NewPct, m.PriorMembers, m.CurrentMembers)
	case s.NetChange < 0:
		return p.Sprintf("Membership decreased by %d members (%.2f%% drop), from %d to %d members. ",
			-s.NetChange, s.DroppedPct, m.PriorMembers, m.CurrentMembers)
	default:
		return p.Sprintf("Membership changed by %s members (%+.2f%% change), from %d to %d members. ",
			signedCount(p, s.NetChange), pct, m.PriorMembers, m.CurrentMembers)
	}
}

func movementParagraph(p *message.Printer, s signal.Set) string {
	if s.DroppedCount == 0 && s.NewCount == 0 {
		return ""
	}
	var b strings.Builder
	p.Fprintf(&b, "\n\nLooking at member movement: %d members dropped (%.2f%% of prior period) while %d new members were added (%.2f%% of prior period). ",
		s.DroppedCount, s.DroppedPct, s.NewCount, s.NewPct)
	switch {
	case s.DroppedCount > 0 && s.NewCount == 0:
		b.WriteString("The net decrease is entirely due to dropped members with no new additions. ")
	case s.NewCount > s.DroppedCount:
		p.Fprintf(&b, "The net increase suggests that new member additions (%d) outweighed the drops (%d). ",
			s.NewCount, s.DroppedCount)
	case s.DroppedCount > s.NewCount:
		p.Fprintf(&b, "The net decrease indicates that member drops (%d) exceeded new additions (%d). ",
			s.DroppedCount, s.NewCount)
	}
	return b.String()
}

func causesParagraph(p *message.Printer, m metrics.Membership, s signal.Set) string {
	var causes []string
	if s.Movement {
		causes = append(causes, "membership movement between organizations (suggesting re-attribution or reassignment of members)")
	}
	if s.RetroDominant && s.DroppedCount > 0 {
		retroPct := float64(m.RetroTermCount) / float64(s.DroppedCount) * 100
		causes = append(causes, p.Sprintf("retroactive terminations (%d members, %.1f%% of drops, suggesting data corrections or backdated terminations)",
			m.RetroTermCount, retroPct))
	}
	if changed := configChangeNames(s, false); len(changed) > 0 {
		causes = append(causes, fmt.Sprintf("provider configuration changes (%s changes that can re-attribute membership)",
			strings.Join(changed, ", ")))
	}
	if len(causes) == 0 {
		return ""
	}
	return fmt.Sprintf("\n\nThe data shows several indicators that help explain this change: %s. These signals suggest that the membership change may be related to data reclassification, member reassignment, or configuration updates rather than actual membership loss or gain.",
		strings.Join(causes, ", "))
}
