package initiator

import (
	"fmt"
	"strings"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
)

// NewsSignal is the news initiator's stage input.
type NewsSignal struct {
	Source          string   `json:"source"`
	Headline        string   `json:"headline"`
	Symbols         []string `json:"symbols,omitempty"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// NewsFilterInitiator starts a flow only for news items whose headline or
// body matches one of the configured keywords. Everything else is noise and
// is vetoed.
type NewsFilterInitiator struct {
	keywords []string
}

// NewNewsFilterInitiator creates a news initiator. Keywords are matched
// case-insensitively.
func NewNewsFilterInitiator(keywords []string) *NewsFilterInitiator {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return &NewsFilterInitiator{keywords: lowered}
}

// MatchedCategory implements Initiator.
func (i *NewsFilterInitiator) MatchedCategory() envelope.Category {
	return envelope.CategoryNews
}

// StartSignalName implements Initiator.
func (i *NewsFilterInitiator) StartSignalName() string {
	return eventbus.SignalFlowStartNews
}

// ShouldStart vetoes items without a keyword match.
func (i *NewsFilterInitiator) ShouldStart(payload any) (bool, string) {
	news, ok := payload.(envelope.NewsPayload)
	if !ok {
		return false, "malformed_news_payload"
	}
	if len(i.matches(news)) == 0 {
		return false, "irrelevant_news"
	}
	return true, ""
}

// Transform implements Initiator.
func (i *NewsFilterInitiator) Transform(payload any) (any, error) {
	news, ok := payload.(envelope.NewsPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected news payload type %T", payload)
	}
	return NewsSignal{
		Source:          news.Source,
		Headline:        news.Headline,
		Symbols:         news.Symbols,
		MatchedKeywords: i.matches(news),
	}, nil
}

func (i *NewsFilterInitiator) matches(news envelope.NewsPayload) []string {
	text := strings.ToLower(news.Headline + " " + news.Body)
	matched := make([]string, 0)
	for _, k := range i.keywords {
		if strings.Contains(text, k) {
			matched = append(matched, k)
		}
	}
	return matched
}

var _ Initiator = (*NewsFilterInitiator)(nil)
