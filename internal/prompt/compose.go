// Package prompt turns user input, page context and persona hints into the
// prompt text carried by a request descriptor.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Action selects how the user's text and context are framed.
type Action string

const (
	ActionChat          Action = "chat"
	ActionSummarize     Action = "summarize"
	ActionExplain       Action = "explain"
	ActionProfessional  Action = "professional"
	ActionItems         Action = "actionItems"
	ActionTwitterThread Action = "twitterThread"
)

var instructions = map[Action]string{
	ActionSummarize:     "Summarize the following:",
	ActionProfessional:  "Make this more professional:",
	ActionItems:         "Generate action items from:",
	ActionTwitterThread: "Convert to a Twitter thread (280 chars per tweet):",
	ActionExplain:       "Explain this:",
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	if a == ActionChat {
		return true
	}
	_, ok := instructions[a]
	return ok
}

// ContextKind describes where attached context text came from.
type ContextKind string

const (
	ContextNone      ContextKind = ""
	ContextSelection ContextKind = "selection"
	ContextPage      ContextKind = "page"
	ContextYouTube   ContextKind = "youtube"
)

func (k ContextKind) label() string {
	switch k {
	case ContextSelection:
		return "selected text"
	case ContextYouTube:
		return "YouTube video transcript"
	case ContextPage:
		return "page content"
	default:
		return ""
	}
}

const (
	// MaxCompareChars bounds each page's content in a compare prompt.
	MaxCompareChars = 5000
	// MaxComparePages bounds how many pages one compare prompt carries.
	MaxComparePages = 6

	truncatedMarker = "... [truncated]"
)

var (
	// ErrEmptyInput indicates there was neither text nor context to send.
	ErrEmptyInput = errors.New("prompt input is empty")
	// ErrUnknownAction indicates an action outside the known set.
	ErrUnknownAction = errors.New("unknown prompt action")
	// ErrPageCount indicates a compare request outside 1..MaxComparePages pages.
	ErrPageCount = errors.New("compare needs between 1 and 6 pages")
)

// Input is a single side panel submission.
type Input struct {
	Action      Action      `json:"action,omitempty"`
	Text        string      `json:"text"`
	Context     string      `json:"context,omitempty"`
	ContextKind ContextKind `json:"context_kind,omitempty"`
	Persona     *Persona    `json:"persona,omitempty"`
	// HasImage allows an otherwise empty submission carrying only an image.
	HasImage bool `json:"has_image,omitempty"`
}

// Result is a composed prompt.
type Result struct {
	Prompt         string `json:"prompt"`
	Action         Action `json:"action"`
	IncludeHistory bool   `json:"include_history"`
}

// Compose builds the prompt for in. A leading slash command in the text
// overrides in.Action. Only chat turns are threaded through history.
func Compose(in Input) (Result, error) {
	action := in.Action
	if action == "" {
		action = ActionChat
	}
	text := strings.TrimSpace(in.Text)
	if parsed, rest, ok := ParseSlashCommand(text); ok {
		action, text = parsed, rest
	}
	if !action.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	context := strings.TrimSpace(in.Context)
	if text == "" && context == "" && !in.HasImage {
		return Result{}, ErrEmptyInput
	}

	var query string
	switch {
	case action == ActionChat:
		query = text
	case text != "" && context != "":
		query = text
	case context != "":
		query = instructions[action]
	default:
		query = instructions[action] + "\n\n" + text
	}

	var b strings.Builder
	b.WriteString(query)
	b.WriteString(in.Persona.note())
	if context != "" {
		fmt.Fprintf(&b, "\n\nContext (%s):\n%s", in.ContextKind.label(), context)
	}

	return Result{
		Prompt:         b.String(),
		Action:         action,
		IncludeHistory: action == ActionChat,
	}, nil
}

// Page is one browser tab's extracted content.
type Page struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// CompareInput asks for an analysis across several pages.
type CompareInput struct {
	Instructions string   `json:"instructions,omitempty"`
	Pages        []Page   `json:"pages"`
	Failed       []string `json:"failed,omitempty"`
	Persona      *Persona `json:"persona,omitempty"`
}

// ComposeCompare builds a multi-page analysis prompt. Compare prompts never
// include history.
func ComposeCompare(in CompareInput) (Result, error) {
	if len(in.Pages) < 1 || len(in.Pages) > MaxComparePages {
		return Result{}, fmt.Errorf("%w: got %d", ErrPageCount, len(in.Pages))
	}

	var b strings.Builder
	if instr := strings.TrimSpace(in.Instructions); instr != "" {
		b.WriteString(instr)
	} else if len(in.Pages) > 1 {
		b.WriteString("Analyze the following pages. Compare their content, highlight key similarities and differences, and provide notable insights.")
	} else {
		b.WriteString("Analyze the following page and provide a detailed summary with key insights.")
	}
	b.WriteString(in.Persona.note())
	b.WriteString("\n\n")

	for i, p := range in.Pages {
		title := p.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "--- Page %d: %s (%s) ---\n%s\n\n", i+1, title, p.URL, truncate(p.Content, MaxCompareChars))
	}

	if len(in.Failed) > 0 {
		fmt.Fprintf(&b, "Note: Could not extract content from: %s\n", strings.Join(in.Failed, ", "))
	}

	return Result{Prompt: b.String(), Action: ActionChat}, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncatedMarker
}
