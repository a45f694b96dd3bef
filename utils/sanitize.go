package utils

import "github.com/microcosm-cc/bluemonday"

// sanitizer is the policy applied to every post, signature and message body.
// UGC plus the handful of extras forum markup converters emit: nofollow on
// links, spoiler/quote classes, and inline code blocks.
var sanitizer = newContentPolicy()

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).
		OnElements("span", "div", "blockquote", "code", "pre")
	return p
}

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
