package command

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const namespace = "/agents"

// nextFlag finds where a bare --prompt value ends.
var nextFlag = regexp.MustCompile(`\s--[A-Za-z]`)

// Parser turns chat turns into commands.
type Parser struct {
	defaultModel string
}

// NewParser returns a parser that fills in defaultModel when an inline
// create omits --model.
func NewParser(defaultModel string) *Parser {
	return &Parser{defaultModel: defaultModel}
}

// Parse returns the command in text, or nil when text is not in the /agents
// namespace and should be treated as plain chat.
func (p *Parser) Parse(text string) Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, namespace) {
		return nil
	}
	rest := text[len(namespace):]
	if rest != "" {
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsSpace(r) {
			return nil
		}
	}

	sub, args := splitFirst(strings.TrimSpace(rest))
	switch sub {
	case "new":
		if args == "" {
			return StartWizard{}
		}
		return p.parseNew(args)
	case "list":
		return ListAgents{}
	case "delete":
		name := strings.Join(strings.Fields(args), " ")
		if name == "" {
			return Usage{Message: DeleteUsage}
		}
		return DeleteAgent{Name: name}
	default:
		return Help{}
	}
}

func (p *Parser) parseNew(args string) Command {
	sc := &scanner{s: args}
	name := sc.token()
	if name == "" || strings.HasPrefix(name, "--") {
		return Usage{Message: NewUsage}
	}

	cmd := CreateAgent{Name: name}
	for {
		sc.skipSpace()
		if sc.done() {
			break
		}
		if !sc.atFlag() {
			sc.token() // stray word
			continue
		}

		flag := strings.TrimPrefix(sc.token(), "--")
		value := sc.value(flag == "prompt")
		switch flag {
		case "description":
			cmd.Description = value
		case "model":
			cmd.Model = value
		case "prompt":
			cmd.SystemPrompt = value
		}
	}

	if cmd.Model == "" {
		cmd.Model = p.defaultModel
	}
	return cmd
}

func splitFirst(s string) (string, string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// scanner walks the argument string of an inline create.
type scanner struct {
	s   string
	pos int
}

func (sc *scanner) done() bool { return sc.pos >= len(sc.s) }

func (sc *scanner) skipSpace() {
	for !sc.done() {
		r, size := utf8.DecodeRuneInString(sc.s[sc.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		sc.pos += size
	}
}

// token consumes up to the next whitespace.
func (sc *scanner) token() string {
	start := sc.pos
	if i := strings.IndexFunc(sc.s[sc.pos:], unicode.IsSpace); i >= 0 {
		sc.pos += i
	} else {
		sc.pos = len(sc.s)
	}
	return sc.s[start:sc.pos]
}

// atFlag reports whether the scanner is positioned on --<letter>.
func (sc *scanner) atFlag() bool {
	rest := sc.s[sc.pos:]
	if len(rest) < 3 || !strings.HasPrefix(rest, "--") {
		return false
	}
	c := rest[2]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// value consumes a flag value: a double-quoted string, or a bare token. A
// greedy bare value runs until the next flag. A flag directly followed by
// another flag has an empty value.
func (sc *scanner) value(greedy bool) string {
	sc.skipSpace()
	if sc.done() || sc.atFlag() {
		return ""
	}

	rest := sc.s[sc.pos:]
	if rest[0] == '"' {
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			sc.pos = len(sc.s)
			return rest[1:]
		}
		sc.pos += end + 2
		return rest[1 : end+1]
	}

	if !greedy {
		return sc.token()
	}
	if loc := nextFlag.FindStringIndex(rest); loc != nil {
		sc.pos += loc[0]
		return strings.TrimSpace(rest[:loc[0]])
	}
	sc.pos = len(sc.s)
	return strings.TrimSpace(rest)
}
