package corememory

import (
	"fmt"
	"strings"
)

// CompileTemplate renders tmpl against values using a small Mustache-style
// syntax (spec section 4.E: "variable substitution {{name}}, conditional
// sections, and block includes"):
//
//	{{name}}    variable substitution — values[name], or "" if absent.
//	{{#name}}...{{/name}}   section — rendered only if values[name] is non-empty.
//	{{^name}}...{{/name}}   inverted section — rendered only if values[name] is empty.
//	{{>name}}   block include — inlines values[name] verbatim.
func CompileTemplate(tmpl string, values map[string]string) (string, error) {
	toks, err := tokenize(tmpl)
	if err != nil {
		return "", err
	}
	out, rest, err := renderTokens(toks, values, "")
	if err != nil {
		return "", err
	}
	if len(rest) != 0 {
		return "", fmt.Errorf("corememory: unmatched section close for %q", rest[0].name)
	}
	return out, nil
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokVar
	tokSection
	tokInverted
	tokClose
	tokInclude
)

type token struct {
	kind tokenKind
	name string
	text string
}

func tokenize(tmpl string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(tmpl) {
		open := strings.Index(tmpl[i:], "{{")
		if open < 0 {
			toks = append(toks, token{kind: tokText, text: tmpl[i:]})
			break
		}
		if open > 0 {
			toks = append(toks, token{kind: tokText, text: tmpl[i : i+open]})
		}
		i += open + 2
		close := strings.Index(tmpl[i:], "}}")
		if close < 0 {
			return nil, fmt.Errorf("corememory: unterminated {{ in template")
		}
		tag := strings.TrimSpace(tmpl[i : i+close])
		i += close + 2

		if tag == "" {
			return nil, fmt.Errorf("corememory: empty {{}} tag in template")
		}
		switch tag[0] {
		case '#':
			toks = append(toks, token{kind: tokSection, name: strings.TrimSpace(tag[1:])})
		case '^':
			toks = append(toks, token{kind: tokInverted, name: strings.TrimSpace(tag[1:])})
		case '/':
			toks = append(toks, token{kind: tokClose, name: strings.TrimSpace(tag[1:])})
		case '>':
			toks = append(toks, token{kind: tokInclude, name: strings.TrimSpace(tag[1:])})
		default:
			toks = append(toks, token{kind: tokVar, name: tag})
		}
	}
	return toks, nil
}

// renderTokens renders toks against values until it hits a tokClose (the
// section this call is nested inside, named openName) or runs out of
// tokens (when openName == ""). It returns the rendered text and whatever
// tokens remain unconsumed.
func renderTokens(toks []token, values map[string]string, openName string) (string, []token, error) {
	var sb strings.Builder
	for len(toks) > 0 {
		t := toks[0]
		toks = toks[1:]

		switch t.kind {
		case tokText:
			sb.WriteString(t.text)
		case tokVar:
			sb.WriteString(values[t.name])
		case tokInclude:
			sb.WriteString(values[t.name])
		case tokClose:
			if t.name != openName {
				return "", nil, fmt.Errorf("corememory: mismatched {{/%s}}, expected {{/%s}}", t.name, openName)
			}
			return sb.String(), toks, nil
		case tokSection, tokInverted:
			body, rest, err := renderTokens(toks, values, t.name)
			if err != nil {
				return "", nil, err
			}
			toks = rest
			show := values[t.name] != ""
			if t.kind == tokInverted {
				show = !show
			}
			if show {
				sb.WriteString(body)
			}
		}
	}
	if openName != "" {
		return "", nil, fmt.Errorf("corememory: unclosed {{#%s}}", openName)
	}
	return sb.String(), toks, nil
}
