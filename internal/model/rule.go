package model

// RuleKind names one of the closed set of rule variants.
type RuleKind string

const (
	RuleKindVIP         RuleKind = "vip"
	RuleKindAgeCategory RuleKind = "age_category"
	RuleKindKeywordKeep RuleKind = "keyword_keep"
	RuleKindPersonal    RuleKind = "personal"
)

// RuleParams is implemented only by the parameter types in this file.
type RuleParams interface {
	Kind() RuleKind
}

// VIPParams matches senders by exact address or by "@domain" suffix.
type VIPParams struct {
	Senders []string
}

// Kind implements RuleParams.
func (VIPParams) Kind() RuleKind { return RuleKindVIP }

// AgeCategoryParams matches messages of a category once they reach MinAgeDays.
// A message is in the category when any keyword occurs in the subject or
// body preview, or any sender pattern occurs in the sender address.
type AgeCategoryParams struct {
	Keywords       []string
	SenderPatterns []string
	MinAgeDays     int
}

// Kind implements RuleParams.
func (AgeCategoryParams) Kind() RuleKind { return RuleKindAgeCategory }

// KeywordKeepParams matches any keyword in the subject or body preview,
// regardless of age.
type KeywordKeepParams struct {
	Keywords []string
}

// Kind implements RuleParams.
func (KeywordKeepParams) Kind() RuleKind { return RuleKindKeywordKeep }

// PersonalParams recognizes person-to-person mail from free providers.
type PersonalParams struct {
	FreeProviders     []string
	AutomatedPatterns []string
	PromoPatterns     []string
	MaxSubjectWords   int
}

// Kind implements RuleParams.
func (PersonalParams) Kind() RuleKind { return RuleKindPersonal }

// Rule is a deterministic classification rule.
type Rule struct {
	Name       string
	Label      Label
	Confidence float64
	Category   string

	// Priority orders evaluation ascending; Override rules win ties.
	Priority int
	Override bool

	Params RuleParams
}

// Kind returns the variant of the rule's parameters.
func (r Rule) Kind() RuleKind {
	if r.Params == nil {
		return ""
	}
	return r.Params.Kind()
}
