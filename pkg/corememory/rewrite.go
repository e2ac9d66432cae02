package corememory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/memenex/memengine/internal/config"
)

// autoRewrite shrinks text to fit capacity using the configured strategy,
// returning the best attempt it produced (the caller decides whether the
// result actually fits).
func (m *Manager) autoRewrite(ctx context.Context, text string, capacity int) (string, error) {
	switch m.Config.RewriteStrategy {
	case config.RewriteSummarize:
		return m.summarize(ctx, text)
	case config.RewriteCompress:
		return compress(text, capacity), nil
	case config.RewriteHybrid:
		out, err := m.summarize(ctx, text)
		if err != nil {
			return compress(text, capacity), nil
		}
		if len(out) > capacity {
			out = compress(out, capacity)
		}
		return out, nil
	default:
		return m.summarize(ctx, text)
	}
}

func (m *Manager) summarize(ctx context.Context, text string) (string, error) {
	if m.Rewriter == nil {
		return "", fmt.Errorf("corememory: no Rewriter configured")
	}
	prompt := fmt.Sprintf("Rewrite the following text to be shorter while preserving all important facts:\n\n%s", text)
	return m.Rewriter.Rewrite(ctx, prompt)
}

// compress removes low-salience sentences, keeping the highest-scoring
// ones (by length and keyword density, the same shape of heuristic the
// importance scorer uses) until the joined result fits capacity.
func compress(text string, capacity int) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return truncateAtSentence(text, capacity)
	}

	type scored struct {
		idx   int
		text  string
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		ranked[i] = scored{idx: i, text: s, score: sentenceSalience(s)}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	kept := make(map[int]bool, len(sentences))
	length := 0
	for _, s := range ranked {
		addLen := len(s.text)
		if length > 0 {
			addLen++ // joining space
		}
		if length+addLen > capacity {
			continue
		}
		kept[s.idx] = true
		length += addLen
	}

	var out []string
	for i, s := range sentences {
		if kept[i] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return truncateAtSentence(text, capacity)
	}
	return strings.Join(out, " ")
}

var salienceKeywords = []string{
	"must", "never", "always", "important", "critical", "remember",
	"prefer", "require", "deadline", "key", "goal",
}

func sentenceSalience(s string) float64 {
	lower := strings.ToLower(s)
	score := float64(len(strings.Fields(s)))
	for _, kw := range salienceKeywords {
		if strings.Contains(lower, kw) {
			score += 5
		}
	}
	return score
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			s := strings.TrimSpace(text[start:end])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = end
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// truncateAtSentence cuts text to at most capacity bytes, backing up to
// the last sentence boundary it can find so the result does not end
// mid-sentence when one exists within range.
func truncateAtSentence(text string, capacity int) string {
	if capacity <= 0 || len(text) <= capacity {
		return text
	}
	cut := text[:capacity]
	for i := len(cut) - 1; i >= 0; i-- {
		if cut[i] == '.' || cut[i] == '!' || cut[i] == '?' {
			return strings.TrimSpace(cut[:i+1])
		}
	}
	return strings.TrimSpace(cut)
}
