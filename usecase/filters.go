package usecase

import "strings"

// ReplyFilter is a deterministic post-processing stage applied to generated
// text before it is shown to the caller or synthesized. Filters compose in
// order and must be safe on arbitrary input.
type ReplyFilter interface {
	Apply(text string) string
}

// FilterChain applies its filters left to right.
type FilterChain []ReplyFilter

func (c FilterChain) Apply(text string) string {
	for _, f := range c {
		text = f.Apply(text)
	}
	return text
}

// DefaultFilters returns the standard chain: role-confusion cleanup first,
// then pacing markers.
func DefaultFilters() FilterChain {
	return FilterChain{
		NewRoleConfusionFilter(),
		NewPacingFilter(),
	}
}

// RoleConfusionFilter strips model output that speaks for the wrong side of
// the call, such as a reply that continues with "Human: ..." lines or opens
// with a role label.
type RoleConfusionFilter struct {
	linePrefixes []string
}

// NewRoleConfusionFilter creates the filter with the standard denylist.
func NewRoleConfusionFilter() *RoleConfusionFilter {
	return &RoleConfusionFilter{
		linePrefixes: []string{
			"human:", "user:", "caller:", "customer:",
			"assistant:", "agent:", "sarah:", "ai:",
		},
	}
}

func (f *RoleConfusionFilter) Apply(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		prefix := f.matchPrefix(lower)
		if prefix == "" {
			kept = append(kept, line)
			continue
		}

		// A leading agent-side label is stripped but the line survives.
		// Anything after a caller-side label is the model inventing the
		// other half of the dialogue; drop it and everything below.
		if i == 0 && isAgentLabel(prefix) {
			kept = append(kept, strings.TrimSpace(trimmed[len(prefix):]))
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func (f *RoleConfusionFilter) matchPrefix(lower string) string {
	for _, p := range f.linePrefixes {
		if strings.HasPrefix(lower, p) {
			return p
		}
	}
	return ""
}

func isAgentLabel(prefix string) bool {
	switch prefix {
	case "assistant:", "agent:", "sarah:", "ai:":
		return true
	}
	return false
}

// PacingFilter inserts short pause markers after sentence punctuation so
// the synthesized voice breathes between sentences.
type PacingFilter struct {
	marker string
}

// NewPacingFilter creates the filter with the "..." pause marker the
// synthesis service renders as a beat of silence.
func NewPacingFilter() *PacingFilter {
	return &PacingFilter{marker: "..."}
}

func (f *PacingFilter) Apply(text string) string {
	var sb strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		sb.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && runes[i+1] == ' ' {
			// Skip if the text already pauses here.
			if r == '.' && i+1 < len(runes) && i >= 2 && runes[i-1] == '.' {
				continue
			}
			sb.WriteString(" " + f.marker)
		}
	}
	return sb.String()
}
