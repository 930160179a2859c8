package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindMentionsLinksParagraphsByFigureNumber(t *testing.T) {
	caption := "Figure 2: Accuracy over epochs"
	paragraphs := []string{
		"We first describe the experimental setup.",
		"As shown in Fig. 2, accuracy improves with more epochs.",
		"Figure 3 compares the baselines.",
		"The results in Figure 21 are out of scope here.",
	}

	figureNum, mentions := FindMentions(caption, paragraphs)

	assert.Equal(t, "2", figureNum)
	assert.Equal(t, []string{"As shown in Fig. 2, accuracy improves with more epochs."}, mentions)
}

func TestFindMentionsCaptionVariants(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		wantNum string
	}{
		{"full word", "Figure 4 shows the pipeline.", "4"},
		{"abbreviated with period", "Fig. 7: Network architecture", "7"},
		{"abbreviated without period", "fig 12 overview", "12"},
		{"plural", "Figs. 3 and 4: Comparison", "3"},
		// Only the FIG prefix is case-tolerant; "FIGURE" in all caps does
		// not match and the caption yields no number.
		{"uppercase full word", "FIGURE 9: Heat map", ""},
		{"uppercase abbreviation", "FIG. 9: Heat map", "9"},
		{"alphanumeric number", "Figure A1: Appendix results", "A1"},
		{"no space before number", "Figure2: Compact captions", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			figureNum, _ := FindMentions(tt.caption, nil)
			assert.Equal(t, tt.wantNum, figureNum)
		})
	}
}

func TestFindMentionsNoNumberInCaption(t *testing.T) {
	figureNum, mentions := FindMentions("An illustrative diagram of the system.", []string{
		"Figure 1 shows something unrelated.",
	})

	assert.Equal(t, "", figureNum)
	assert.Nil(t, mentions)
}

func TestFindMentionsEmptyCaption(t *testing.T) {
	figureNum, mentions := FindMentions("", []string{"As shown in Fig. 1."})

	assert.Equal(t, "", figureNum)
	assert.Nil(t, mentions)
}

func TestFindMentionsPreservesParagraphOrder(t *testing.T) {
	caption := "Fig. 5: Ablation study"
	paragraphs := []string{
		"Later, Figure 5 confirms the trend.",
		"No reference here.",
		"See Fig. 5 for details.",
	}

	_, mentions := FindMentions(caption, paragraphs)

	assert.Equal(t, []string{
		"Later, Figure 5 confirms the trend.",
		"See Fig. 5 for details.",
	}, mentions)
}

func TestFindMentionsExactNumberMatchOnly(t *testing.T) {
	// "Figure 21" must not count as a mention of figure 2
	_, mentions := FindMentions("Figure 2: Results", []string{
		"Figure 21 extends these results.",
		"Compare with Figure 12.",
	})

	assert.Nil(t, mentions)
}

func TestFindMentionsParagraphListedOncePerMatch(t *testing.T) {
	// A paragraph referencing the figure twice appears once in the output
	_, mentions := FindMentions("Figure 1: Overview", []string{
		"Figure 1 is described here; Fig. 1 also appears in the appendix.",
	})

	assert.Len(t, mentions, 1)
}
