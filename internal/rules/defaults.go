package rules

import (
	"fmt"
	"strings"

	"github.com/nhle/mailtriage/internal/model"
)

// Default keyword and pattern lists. Configured lists replace these.
var (
	DefaultEventKeywords = []string{
		"calendar", "meeting", "appointment", "rsvp", "invite", "invitation",
		"event", "reminder", "scheduled", "webinar", "conference",
	}

	DefaultJobKeywords = []string{
		"job opportunity", "job alert", "career opportunity", "now hiring",
		"we're hiring", "position available", "job opening", "apply now",
		"recruitment", "recruiter",
	}

	DefaultNewsletterSenders = []string{
		"@newsletters.", "noreply@", "news@",
	}

	DefaultPromotionalKeywords = []string{
		"sale", "discount", "% off", "limited time", "deal", "offer",
		"promotion", "exclusive", "flash sale", "clearance", "save now",
		"shop now", "buy now", "order now",
	}

	// DefaultPromoPatterns are regular expressions that mark bulk mail.
	DefaultPromoPatterns = []string{
		`unsubscribe`, `click here`, `\d+% off`, `limited time`, `don't miss`, `exclusive offer`,
	}

	DefaultAutomatedPatterns = []string{
		"noreply", "no-reply", "donotreply", "notifications", "alerts",
		"info@", "support@", "news@", "marketing@",
	}

	DefaultFreeProviders = []string{
		"gmail.com", "yahoo.com", "hotmail.com",
	}
)

// Rule names of the default chain.
const (
	RuleOldEvent       = "old_event"
	RuleVIPSender      = "vip_sender"
	RuleEvent          = "event"
	RulePersonal       = "personal_contact"
	RuleOldJobOffer    = "old_job_offer"
	RuleOldNewsletter  = "old_newsletter"
	RuleOldPromotional = "old_promotional"
)

// DefaultRules builds the standard rule chain from configuration.
func DefaultRules(cfg model.RulesConfig) []model.Rule {
	events := orDefault(cfg.EventKeywords, DefaultEventKeywords)

	return []model.Rule{
		{
			Name:       RuleOldEvent,
			Label:      model.LabelDelete,
			Confidence: 0.93,
			Category:   "event",
			Priority:   10,
			Override:   true,
			Params: model.AgeCategoryParams{
				Keywords:   events,
				MinAgeDays: cfg.AgeDays.Event,
			},
		},
		{
			Name:       RuleVIPSender,
			Label:      model.LabelKeep,
			Confidence: 1.0,
			Category:   "personal",
			Priority:   10,
			Params:     model.VIPParams{Senders: cfg.VIPSenders},
		},
		{
			Name:       RuleEvent,
			Label:      model.LabelKeep,
			Confidence: 0.95,
			Category:   "event",
			Priority:   20,
			Params:     model.KeywordKeepParams{Keywords: events},
		},
		{
			Name:       RulePersonal,
			Label:      model.LabelKeep,
			Confidence: 0.80,
			Category:   "personal",
			Priority:   30,
			Params: model.PersonalParams{
				FreeProviders:     DefaultFreeProviders,
				AutomatedPatterns: DefaultAutomatedPatterns,
				PromoPatterns:     DefaultPromoPatterns,
				MaxSubjectWords:   6,
			},
		},
		{
			Name:       RuleOldJobOffer,
			Label:      model.LabelDelete,
			Confidence: 0.92,
			Category:   "job",
			Priority:   40,
			Params: model.AgeCategoryParams{
				Keywords:   orDefault(cfg.JobKeywords, DefaultJobKeywords),
				MinAgeDays: cfg.AgeDays.JobOffer,
			},
		},
		{
			Name:       RuleOldNewsletter,
			Label:      model.LabelDelete,
			Confidence: 0.93,
			Category:   "newsletter",
			Priority:   50,
			Params: model.AgeCategoryParams{
				SenderPatterns: orDefault(cfg.NewsletterSenders, DefaultNewsletterSenders),
				MinAgeDays:     cfg.AgeDays.Newsletter,
			},
		},
		{
			Name:       RuleOldPromotional,
			Label:      model.LabelDelete,
			Confidence: 0.94,
			Category:   "promotional",
			Priority:   60,
			Params: model.AgeCategoryParams{
				Keywords:   orDefault(cfg.PromotionalKeywords, DefaultPromotionalKeywords),
				MinAgeDays: cfg.AgeDays.Promotional,
			},
		},
	}
}

// orDefault lower-cases list, or returns def when list is empty.
func orDefault(list, def []string) []string {
	if len(list) == 0 {
		return def
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// describe renders the reasoning attached to a rule verdict.
func describe(r model.Rule, msg model.MessageRecord) string {
	switch p := r.Params.(type) {
	case model.VIPParams:
		return fmt.Sprintf("VIP sender: %s", msg.Sender)
	case model.AgeCategoryParams:
		return fmt.Sprintf("%s message older than %d days", r.Category, p.MinAgeDays)
	case model.KeywordKeepParams:
		return fmt.Sprintf("message appears to be %s related", r.Category)
	case model.PersonalParams:
		return "message appears to be from a personal contact"
	default:
		return r.Name
	}
}
