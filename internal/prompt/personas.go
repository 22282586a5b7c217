package prompt

import "fmt"

// Persona is a style hint the caller attaches to a submission.
type Persona struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

func (p *Persona) note() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("\n\n[Style hint (%s): %s \u2014 Apply this style only if relevant to the user's request above.]", p.Name, p.SystemPrompt)
}
