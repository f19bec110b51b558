package agent

import (
	"regexp"
	"strings"
)

var (
	thinkRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	codeRe  = regexp.MustCompile(`(?s)<python>(.*?)</python>`)
	replyRe = regexp.MustCompile(`(?s)<reply>(.*?)</reply>`)
)

type responseParts struct {
	Think string
	Code  string
	Reply string
}

// extractParts pulls the tagged sections out of a model response. Models
// sometimes forget the closing </reply> on their final turn, so an unclosed
// <reply> is taken through end of text.
func extractParts(content string) responseParts {
	var p responseParts
	if m := thinkRe.FindStringSubmatch(content); m != nil {
		p.Think = strings.TrimSpace(m[1])
	}
	if m := codeRe.FindStringSubmatch(content); m != nil {
		p.Code = strings.TrimSpace(m[1])
	}
	if m := replyRe.FindStringSubmatch(content); m != nil {
		p.Reply = strings.TrimSpace(m[1])
	} else if idx := strings.Index(content, "<reply>"); idx >= 0 {
		p.Reply = strings.TrimSpace(content[idx+len("<reply>"):])
	}
	return p
}
