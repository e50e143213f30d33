package schedule

import (
	"fmt"
	"strings"
)

// NoPromptInput is returned by FormatPrompts when every input is empty.
const NoPromptInput = "No input provided."

// PromptOptions controls FormatPrompts.
type PromptOptions struct {
	Interval int // frames between consecutive prompts
	Offset   int // frame of the first prompt
	Prepend  string
	Append   string
}

// FormatPrompts turns one prompt per line into a keyframed prompt schedule:
//
//	"0" : "prepend, first line, append",
//	"50" : "prepend, second line, append"
//
// Blank lines are skipped and do not advance the frame counter.
func FormatPrompts(lines string, opts PromptOptions) string {
	prepend := strings.TrimSpace(opts.Prepend)
	appendText := strings.TrimSpace(opts.Append)
	if lines == "" && prepend == "" && appendText == "" {
		return NoPromptInput
	}

	frame := opts.Offset
	var out []string
	for _, line := range strings.Split(lines, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		text := line
		if prepend != "" {
			text = prepend + ", " + text
		}
		if appendText != "" {
			text = text + ", " + appendText
		}
		out = append(out, fmt.Sprintf("%q : %q", fmt.Sprint(frame), text))
		frame += opts.Interval
	}
	return strings.Join(out, ",\n")
}
