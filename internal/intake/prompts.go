package intake

import (
	"fmt"
	"strings"

	"github.com/ashureev/incident-intake/internal/domain"
)

const (
	promptTheme       = "Enter the subject of your report:"
	promptDescription = "Describe the situation in more detail:"
	promptContact     = "Send the report anonymously with /send, or leave a contact for feedback:"
	promptFile        = "Send the report with /send, or attach a file with details:"
)

func greeting(from domain.Identity) string {
	return fmt.Sprintf("Hello, %s\n\n"+
		"This bot files an incident report with the support service.\n\n"+
		"/api - send the report via API\n"+
		"/smtp - send the report via SMTP", from.DisplayName())
}

func intro(ch domain.Channel) string {
	return fmt.Sprintf("To send a report via %s, enter its subject, describe the situation, "+
		"leave a contact for feedback and attach a file with details.", strings.ToUpper(string(ch)))
}

func normalizeCommand(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	if i := strings.IndexAny(s, " @"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}
