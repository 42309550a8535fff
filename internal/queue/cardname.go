package queue

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// deriveCardName turns a source filename into a human-readable card name
// used for print job titles and CLI display.
func deriveCardName(sourcePath string) string {
	if sourcePath == "" {
		return "Untitled Card"
	}
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	name := strings.TrimSpace(cleaned.String())
	if name == "" {
		return "Untitled Card"
	}
	return cases.Title(language.Und).String(name)
}

// DeriveCardName exposes the filename-to-card-name rules for presentation
// layers that show names before a job exists.
func DeriveCardName(sourcePath string) string {
	return deriveCardName(sourcePath)
}
