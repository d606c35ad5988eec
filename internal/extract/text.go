package extract

import (
	"strings"

	"github.com/k3a/html2text"
)

// TextFromHTML converts an HTML message body to plain text suitable for
// the extraction heuristics, collapsing excessive blank lines.
func TextFromHTML(html string) string {
	if html == "" {
		return ""
	}

	text := html2text.HTML2Text(html)

	lines := strings.Split(text, "\n")
	var result []string
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank <= 2 {
				result = append(result, "")
			}
			continue
		}
		blank = 0
		result = append(result, line)
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}
