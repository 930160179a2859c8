/**
 * Mention Linker - caption to body-paragraph cross references
 *
 * Derives a figure's number from its caption and collects every body
 * paragraph that references the same number ("Figure 2", "Fig. 2", "figs 2",
 * ...). Matching is purely lexical; no layout information is used.
 */

package pipeline

import (
	"regexp"
)

// mentionPattern matches figure references in running text. Group 1 is the
// full reference ("Fig. 2"), group 2 the figure number token ("2", "A1").
var mentionPattern = regexp.MustCompile(`\b([Ff][Ii][Gg](?:ure)?s?\.?\s?(\w*\d+))\b`)

// FindMentions extracts the figure number from caption and returns the
// paragraphs that mention that number.
//
// The figure number is group 2 of the first caption match. A paragraph
// qualifies when any of its references carries the exact same number token.
// If the caption yields no number, the result is ("", nil): nothing to link.
func FindMentions(caption string, paragraphs []string) (string, []string) {
	captionMatch := mentionPattern.FindStringSubmatch(caption)
	if captionMatch == nil {
		return "", nil
	}
	figureNum := captionMatch[2]

	var mentions []string
	for _, paragraph := range paragraphs {
		for _, m := range mentionPattern.FindAllStringSubmatch(paragraph, -1) {
			if m[2] == figureNum {
				mentions = append(mentions, paragraph)
				break
			}
		}
	}

	return figureNum, mentions
}
