package suggest

import "encoding/json"

// Payload carries the category-specific part of a suggestion. Every known
// category has exactly one payload type; unknown categories use
// GenericPayload.
type Payload interface {
	Category() Category
}

// GrammarPayload names the grammar rule that was violated.
type GrammarPayload struct {
	Rule string `json:"rule,omitempty"`
}

func (GrammarPayload) Category() Category { return CategoryGrammar }

// SpellingPayload records which dictionary flagged the word.
type SpellingPayload struct {
	Dictionary string `json:"dictionary,omitempty"`
}

func (SpellingPayload) Category() Category { return CategorySpelling }

// StylePayload names the style guideline.
type StylePayload struct {
	Guideline string `json:"guideline,omitempty"`
}

func (StylePayload) Category() Category { return CategoryStyle }

// DemonetizationPayload describes ad-suitability risk.
type DemonetizationPayload struct {
	RiskLevel string   `json:"riskLevel,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

func (DemonetizationPayload) Category() Category { return CategoryDemonetization }

// SlangPayload marks intentional slang that should be left alone.
type SlangPayload struct {
	Term      string `json:"term,omitempty"`
	Meaning   string `json:"meaning,omitempty"`
	Protected bool   `json:"protected"`
}

func (SlangPayload) Category() Category { return CategorySlang }

// ToneRewritePayload describes a rewrite that keeps the author's voice.
type ToneRewritePayload struct {
	OriginalTone   string `json:"originalTone,omitempty"`
	TargetTone     string `json:"targetTone,omitempty"`
	PreservesVoice bool   `json:"preservesVoice"`
}

func (ToneRewritePayload) Category() Category { return CategoryToneRewrite }

// EngagementPayload describes a hook or call-to-action improvement.
type EngagementPayload struct {
	EngagementType string `json:"engagementType,omitempty"`
}

func (EngagementPayload) Category() Category { return CategoryEngagement }

// SEOPayload links the suggestion to a keyword.
type SEOPayload struct {
	Keyword     string `json:"keyword,omitempty"`
	SEOCategory string `json:"seoCategory,omitempty"`
}

func (SEOPayload) Category() Category { return CategorySEO }

// PlatformPayload adapts text to a publishing platform.
type PlatformPayload struct {
	Platform      string   `json:"platform,omitempty"`
	PlatformScore *float64 `json:"platformScore,omitempty"`
}

func (PlatformPayload) Category() Category { return CategoryPlatform }

// GenericPayload keeps the raw payload of a category the engine does not know.
type GenericPayload struct {
	Kind Category
	Raw  json.RawMessage
}

func (p GenericPayload) Category() Category { return p.Kind }

// DecodePayload builds the payload variant for category c. An empty raw
// message yields the zero payload of that category.
func DecodePayload(c Category, raw json.RawMessage) (Payload, error) {
	switch c {
	case CategoryGrammar:
		return decodeAs[GrammarPayload](raw)
	case CategorySpelling:
		return decodeAs[SpellingPayload](raw)
	case CategoryStyle:
		return decodeAs[StylePayload](raw)
	case CategoryDemonetization:
		return decodeAs[DemonetizationPayload](raw)
	case CategorySlang:
		return decodeAs[SlangPayload](raw)
	case CategoryToneRewrite:
		return decodeAs[ToneRewritePayload](raw)
	case CategoryEngagement:
		return decodeAs[EngagementPayload](raw)
	case CategorySEO:
		return decodeAs[SEOPayload](raw)
	case CategoryPlatform:
		return decodeAs[PlatformPayload](raw)
	default:
		var kept json.RawMessage
		if len(raw) > 0 {
			kept = append(json.RawMessage(nil), raw...)
		}
		return GenericPayload{Kind: c, Raw: kept}, nil
	}
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var value T
	if len(raw) == 0 || string(raw) == "null" {
		return value, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func encodePayload(p Payload) (json.RawMessage, error) {
	if generic, ok := p.(GenericPayload); ok {
		return generic.Raw, nil
	}
	return json.Marshal(p)
}
