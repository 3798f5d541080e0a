// Package cluster groups report keywords into topics through a language
// model. The clustering itself is external; this package builds the
// request and checks the answer only uses keywords it was given.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// OtherLabel collects keywords the model left unassigned
const OtherLabel = "other"

// Group is one topic and its keywords
type Group struct {
	Label    string   `json:"label" yaml:"label"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// Clusterer groups keywords into at most k topics
type Clusterer interface {
	Name() string
	Cluster(ctx context.Context, keywords []string, k int) ([]Group, error)
}

// Config holds clusterer settings
type Config struct {
	// Provider: "openai", "anthropic", "ollama" or "" (disabled)
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// New returns the configured clusterer, or nil when Provider is empty
func New(cfg Config) (Clusterer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIClusterer(cfg)
	case "anthropic", "claude":
		return NewAnthropicClusterer(cfg)
	case "ollama":
		return NewOllamaClusterer(cfg)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cluster provider: %s (supported: openai, anthropic, ollama)", cfg.Provider)
	}
}

const systemPrompt = "You group search keywords into shopping topics. Answer with JSON only."

// BuildPrompt asks for a JSON object {"groups":[{"label":..,"keywords":[..]}]}
func BuildPrompt(keywords []string, k int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Group the following %d keywords into at most %d topics.\n", len(keywords), k)
	b.WriteString("Use every keyword exactly once and copy keywords verbatim.\n")
	b.WriteString(`Reply as {"groups":[{"label":"short topic name","keywords":["..."]}]}` + "\n\nKeywords:\n")
	for _, kw := range keywords {
		b.WriteString("- ")
		b.WriteString(kw)
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseGroups decodes a model answer. Keywords that were not asked for
// are dropped, duplicates keep their first group and anything left over
// goes to an OtherLabel group.
func ParseGroups(answer string, keywords []string) ([]Group, error) {
	answer = strings.TrimSpace(answer)
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimPrefix(answer, "```")
	answer = strings.TrimSuffix(answer, "```")

	var payload struct {
		Groups []Group `json:"groups"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(answer)), &payload); err != nil {
		return nil, fmt.Errorf("decode cluster answer: %w", err)
	}
	if len(payload.Groups) == 0 {
		return nil, errors.New("cluster answer has no groups")
	}

	wanted := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		wanted[kw] = true
	}
	assigned := make(map[string]bool, len(keywords))

	var groups []Group
	for _, g := range payload.Groups {
		var kept []string
		for _, kw := range g.Keywords {
			if !wanted[kw] || assigned[kw] {
				continue
			}
			assigned[kw] = true
			kept = append(kept, kw)
		}
		if len(kept) == 0 {
			continue
		}
		label := strings.TrimSpace(g.Label)
		if label == "" {
			label = OtherLabel
		}
		groups = append(groups, Group{Label: label, Keywords: kept})
	}

	var rest []string
	for _, kw := range keywords {
		if !assigned[kw] {
			rest = append(rest, kw)
		}
	}
	if len(rest) > 0 {
		groups = append(groups, Group{Label: OtherLabel, Keywords: rest})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Keywords) > len(groups[j].Keywords)
	})
	return groups, nil
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
