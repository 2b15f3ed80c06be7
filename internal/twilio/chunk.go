package twilio

import "strings"

// MaxMessageChars is the channel's per-message character limit.
const MaxMessageChars = 1600

// ChunkMessage splits body into chunks of at most max characters, breaking
// only on newline boundaries. Consecutive lines are packed greedily into each
// chunk; a single line longer than max is kept whole and left to the channel
// to truncate rather than broken mid-word. Joining the chunks with "\n"
// reconstructs the original body exactly.
func ChunkMessage(body string, max int) []string {
	if max <= 0 {
		max = MaxMessageChars
	}
	if len(body) <= max {
		return []string{body}
	}

	lines := strings.Split(body, "\n")
	var chunks []string
	var cur strings.Builder

	for _, line := range lines {
		if cur.Len() == 0 {
			cur.WriteString(line)
			continue
		}
		// +1 for the joining newline.
		if cur.Len()+1+len(line) <= max {
			cur.WriteByte('\n')
			cur.WriteString(line)
			continue
		}
		chunks = append(chunks, cur.String())
		cur.Reset()
		cur.WriteString(line)
	}
	chunks = append(chunks, cur.String())
	return chunks
}
