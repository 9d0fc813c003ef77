package svg

import (
	"bytes"
	"errors"
	"regexp"
)

var ErrNotSVG = errors.New("not an svg document")

type rule struct {
	name    string
	pattern *regexp.Regexp
}

// Applied in order. Element rules run before attribute rules so that
// attributes inside removed elements are not reported twice.
var rules = []rule{
	{"doctype", regexp.MustCompile(`(?is)<!DOCTYPE[^>\[]*(\[.*?\])?\s*>`)},
	{"script", regexp.MustCompile(`(?is)<\s*script[\s>].*?<\s*/\s*script\s*>`)},
	{"foreignObject", regexp.MustCompile(`(?is)<\s*foreignObject[\s>].*?<\s*/\s*foreignObject\s*>`)},
	{"embed", regexp.MustCompile(`(?is)<\s*(iframe|embed|object)[\s>].*?(<\s*/\s*(iframe|embed|object)\s*>|/>)`)},
	{"event", regexp.MustCompile(`(?is)\son[a-z]+\s*=\s*("[^"]*"|'[^']*')`)},
	{"javascriptHref", regexp.MustCompile(`(?is)\s(xlink:)?href\s*=\s*("\s*javascript:[^"]*"|'\s*javascript:[^']*')`)},
}

// Sanitize strips active content from an uploaded SVG.
func Sanitize(input []byte) ([]byte, error) {
	clean, _, err := SanitizeReport(input)
	return clean, err
}

// SanitizeReport also names the rules that removed something.
func SanitizeReport(input []byte) ([]byte, []string, error) {
	if !bytes.Contains(bytes.ToLower(input), []byte("<svg")) {
		return nil, nil, ErrNotSVG
	}

	clean := input
	var fired []string
	for _, r := range rules {
		if !r.pattern.Match(clean) {
			continue
		}
		clean = r.pattern.ReplaceAll(clean, nil)
		fired = append(fired, r.name)
	}
	return clean, fired, nil
}
