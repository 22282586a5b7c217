package prompt

import "strings"

// Command is a slash command that selects an action.
type Command struct {
	// Name is the canonical form, e.g. "/summarize".
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Action      Action   `json:"action"`
	Description string   `json:"description"`
}

var commands = []Command{
	{Name: "/summarize", Aliases: []string{"/summary"}, Action: ActionSummarize, Description: "Summarize text"},
	{Name: "/explain", Aliases: []string{"/eli5"}, Action: ActionExplain, Description: "Explain in simple terms"},
	{Name: "/professional", Aliases: []string{"/pro"}, Action: ActionProfessional, Description: "Make text professional"},
	{Name: "/actions", Aliases: []string{"/action", "/todos"}, Action: ActionItems, Description: "Extract action items"},
	{Name: "/twitter", Aliases: []string{"/thread", "/tweet"}, Action: ActionTwitterThread, Description: "Convert to tweet thread"},
	{Name: "/chat", Action: ActionChat, Description: "Regular conversation"},
}

// Commands lists the slash commands in display order.
func Commands() []Command {
	out := make([]Command, len(commands))
	for i, cmd := range commands {
		cmd.Aliases = append([]string(nil), cmd.Aliases...)
		out[i] = cmd
	}
	return out
}

// CompleteCommand returns the commands whose canonical name starts with
// prefix. An empty prefix matches nothing.
func CompleteCommand(prefix string) []Command {
	prefix = strings.ToLower(prefix)
	if prefix == "" {
		return nil
	}
	var out []Command
	for _, cmd := range Commands() {
		if strings.HasPrefix(cmd.Name, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}

// ParseSlashCommand recognises a leading slash command, matched without
// regard to case, either alone or followed by a space. It returns the
// selected action and the remaining text.
func ParseSlashCommand(text string) (Action, string, bool) {
	trimmed := strings.TrimSpace(text)

	for _, cmd := range commands {
		for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
			if hasCommandPrefix(trimmed, name) {
				return cmd.Action, strings.TrimSpace(trimmed[len(name):]), true
			}
		}
	}
	return "", "", false
}

func hasCommandPrefix(text, name string) bool {
	if len(text) < len(name) || !strings.EqualFold(text[:len(name)], name) {
		return false
	}
	return len(text) == len(name) || text[len(name)] == ' '
}
