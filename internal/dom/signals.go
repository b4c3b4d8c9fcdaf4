package dom

import "regexp"

var (
	codePattern = regexp.MustCompile("(?im)```|^\\s*(?:func|def|class|import|package|return|const|let|var|public|private)\\b|=>|[;{}]\\s*$")
	filePattern = regexp.MustCompile(`(?i)\.(?:pdf|docx?|xlsx?|pptx?|csv|zip|tar|gz|png|jpe?g|gif|webp|svg|txt|md|json|ya?ml)\b|\b(?:attachment|attached|download|upload(?:ed)?|file)\b`)
	urlPattern  = regexp.MustCompile(`(?i)\bhttps?://|\bwww\.`)
)

// LooksLikeCode reports whether text carries source-code tokens.
func LooksLikeCode(text string) bool {
	return codePattern.MatchString(text)
}

// MentionsFile reports whether text references a file or attachment.
func MentionsFile(text string) bool {
	return filePattern.MatchString(text)
}

// HasURL reports whether text contains a URL.
func HasURL(text string) bool {
	return urlPattern.MatchString(text)
}
