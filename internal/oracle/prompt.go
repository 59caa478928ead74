package oracle

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const systemPrompt = "You are an email classification assistant. " +
	"You decide whether a message should be kept, deleted or archived. " +
	"Respond ONLY with valid JSON, no other text."

const guidelines = `Guidelines:
- Recommend "delete" for spam, mass marketing, old newsletters (more than a week old),
  old promotions, unsolicited job offers and recruiter mail, and automated notifications with no value.
- Recommend "keep" for personal correspondence, important business mail and anything needing action.
- Recommend "archive" for receipts, order and travel confirmations, and reference material.
- Be more conservative with recent mail (under 7 days) and more aggressive with bulk mail older than 30 days.
- If unsure, prefer "keep" or "archive" over "delete". Use confidence above 0.8 only for clear cases.

Respond in JSON format:
{
  "recommendation": "delete|keep|archive",
  "confidence_score": 0.85,
  "reasoning": "Brief explanation here",
  "category": "newsletter",
  "priority": "low"
}`

// BuildPrompt renders the user prompt for req.
func BuildPrompt(req Request) string {
	msg := req.Message
	var sb strings.Builder

	sb.WriteString("Analyze this email and provide a recommendation.\n\n")
	sb.WriteString("Email details:\n")
	fmt.Fprintf(&sb, "- From: %s\n", senderLine(msg.SenderName, msg.Sender))
	fmt.Fprintf(&sb, "- Subject: %s\n", msg.Subject)
	if msg.ReceivedAt.IsZero() {
		sb.WriteString("- Received: unknown\n")
	} else {
		fmt.Fprintf(&sb, "- Received: %s (%s)\n",
			msg.ReceivedAt.Format("2006-01-02"),
			humanize.RelTime(msg.ReceivedAt, req.Now, "old", "from now"))
	}
	fmt.Fprintf(&sb, "- Size: %s\n", humanize.Bytes(uint64(max(msg.SizeBytes, 0))))
	fmt.Fprintf(&sb, "- Has attachments: %t\n", msg.HasAttachments)
	fmt.Fprintf(&sb, "- Body preview: %s\n", msg.BodyPreview)

	if len(req.Exemplars) > 0 {
		sb.WriteString("\nPrevious decisions for similar emails:\n")
		for _, ex := range req.Exemplars {
			fmt.Fprintf(&sb, "- From %s: %q was %s (category: %s)\n",
				ex.Sender, truncate(ex.Subject, 50), pastTense(string(ex.ApprovedLabel)), ex.Category)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(guidelines)
	return sb.String()
}

func senderLine(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

func pastTense(label string) string {
	switch label {
	case "keep":
		return "kept"
	case "delete":
		return "deleted"
	case "archive":
		return "archived"
	default:
		return label
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
