package backend

import "strings"

// splitChunks breaks a burst of reply text into smaller pieces for
// deliberate streaming. The burst is split by line first to keep
// formatting intact; any line longer than chunkWords words is split
// again at sentence boundaries. Blank lines survive as empty pieces so
// paragraph breaks reach the caller. Joining the pieces with line
// breaks reproduces every word of the input in order.
func splitChunks(text string, chunkWords int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			chunks = append(chunks, "")
			continue
		}
		if len(strings.Fields(line)) > chunkWords {
			for _, sentence := range splitSentences(line) {
				if s := strings.TrimSpace(sentence); s != "" {
					chunks = append(chunks, s)
				}
			}
			continue
		}
		chunks = append(chunks, line)
	}
	return chunks
}

// splitSentences splits at whitespace that follows sentence-ending
// punctuation. The punctuation stays with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if !isSentenceEnd(text[i]) {
			continue
		}
		j := i + 1
		for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
			j++
		}
		if j == i+1 || j == len(text) {
			continue
		}
		out = append(out, text[start:i+1])
		start = j
		i = j - 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isSentenceEnd(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}
