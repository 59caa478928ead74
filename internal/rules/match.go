package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nhle/mailtriage/internal/model"
)

// compiled holds a rule with its regular expressions prepared once.
type compiled struct {
	model.Rule
	promo []*regexp.Regexp
}

func compile(r model.Rule) (compiled, error) {
	c := compiled{Rule: r}

	if r.Name == "" {
		return c, fmt.Errorf("rule has no name")
	}
	if !r.Label.Valid() {
		return c, fmt.Errorf("rule %s has invalid label %q", r.Name, r.Label)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return c, fmt.Errorf("rule %s has confidence %.2f outside [0,1]", r.Name, r.Confidence)
	}

	switch p := r.Params.(type) {
	case model.VIPParams, model.KeywordKeepParams:
	case model.AgeCategoryParams:
		if p.MinAgeDays < 0 {
			return c, fmt.Errorf("rule %s has negative age threshold", r.Name)
		}
	case model.PersonalParams:
		for _, expr := range p.PromoPatterns {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return c, fmt.Errorf("rule %s: compiling pattern %q: %w", r.Name, expr, err)
			}
			c.promo = append(c.promo, re)
		}
	default:
		return c, fmt.Errorf("rule %s has unsupported params %T", r.Name, r.Params)
	}

	return c, nil
}

// matches reports whether the rule applies to msg at now.
func (c compiled) matches(msg model.MessageRecord, now time.Time) bool {
	sender := strings.ToLower(msg.Sender)
	text := strings.ToLower(msg.Subject + " " + msg.BodyPreview)

	switch p := c.Params.(type) {
	case model.VIPParams:
		return isVIP(sender, p.Senders)

	case model.KeywordKeepParams:
		return containsAny(text, p.Keywords)

	case model.AgeCategoryParams:
		if msg.AgeDays(now) < p.MinAgeDays {
			return false
		}
		return containsAny(text, p.Keywords) || containsAny(sender, p.SenderPatterns)

	case model.PersonalParams:
		if containsAny(sender, p.AutomatedPatterns) {
			return false
		}
		for _, re := range c.promo {
			if re.MatchString(text) {
				return false
			}
		}
		if !hasDomain(sender, p.FreeProviders) {
			return false
		}
		return len(strings.Fields(msg.Subject)) <= p.MaxSubjectWords
	}

	return false
}

// isVIP matches an exact address, or a domain suffix for "@domain" entries.
func isVIP(sender string, vips []string) bool {
	for _, v := range vips {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if strings.HasPrefix(v, "@") {
			if strings.HasSuffix(sender, v) {
				return true
			}
			continue
		}
		if sender == v {
			return true
		}
	}
	return false
}

func hasDomain(sender string, domains []string) bool {
	d := model.DomainOf(sender)
	for _, want := range domains {
		if d == strings.ToLower(want) {
			return true
		}
	}
	return false
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
