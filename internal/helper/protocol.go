package helper

import "strings"

type Kind int

const (
	Unknown Kind = iota
	PromptEchoOff
	PromptEchoOn
	ErrorMsg
	TextInfo
	Success
	Failure
)

func (k Kind) String() string {
	switch k {
	case PromptEchoOff:
		return "PAM_PROMPT_ECHO_OFF"
	case PromptEchoOn:
		return "PAM_PROMPT_ECHO_ON"
	case ErrorMsg:
		return "PAM_ERROR_MSG"
	case TextInfo:
		return "PAM_TEXT_INFO"
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// PasswordPrompt is the only echo-off prompt the agent answers.
const PasswordPrompt = "Password:"

// Directive is one parsed line of helper output. Text is the trimmed
// remainder after the keyword.
type Directive struct {
	Kind Kind
	Text string
}

var prefixes = []struct {
	word string
	kind Kind
}{
	{"PAM_PROMPT_ECHO_OFF", PromptEchoOff},
	{"PAM_PROMPT_ECHO_ON", PromptEchoOn},
	{"PAM_ERROR_MSG", ErrorMsg},
	{"PAM_TEXT_INFO", TextInfo},
	{"SUCCESS", Success},
	{"FAILURE", Failure},
}

func ParseLine(line string) Directive {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(line, p.word); ok {
			return Directive{Kind: p.kind, Text: strings.TrimSpace(rest)}
		}
	}
	return Directive{Kind: Unknown, Text: line}
}

// IsPasswordPrompt reports whether d asks for the password.
func (d Directive) IsPasswordPrompt() bool {
	return d.Kind == PromptEchoOff && d.Text == PasswordPrompt
}
