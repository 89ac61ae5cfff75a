package transcript

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ArchiveURL prefixes a chat id to link its LiveChat archive
	ArchiveURL = "https://my.livechatinc.com/archives/"
	// LineBreak replaces every newline in a note body
	LineBreak = "<br/>"
	// MaxNoteLength is the longest note body HubSpot accepts
	MaxNoteLength = 65535
)

// times in a note are shown in the zone named by its footer
var noteZone = time.FixedZone("GMT-5", -5*60*60)

// Format renders a chat as a note body
func Format(chat ChatData) string {

	lines := make([]string, 0, len(chat.Messages))
	for _, m := range chat.Messages {
		lines = append(lines, fmt.Sprintf("[%v] %v: %v", m.Time().In(noteZone).Format("3:04:05 PM"), m.AuthorName, m.Text))
	}

	// the message block keeps its own line even when empty
	note := fmt.Sprintf("LiveChat conversation transcript for chat %v%v:\n------------\n%v\n(Times in GMT-5)",
		ArchiveURL, chat.ID, strings.Join(lines, "\n"))

	return strings.ReplaceAll(note, "\n", LineBreak)
}

// Truncate keeps at most n characters of s
func Truncate(s string, n int) string {

	if n <= 0 {
		return ""
	}

	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
