package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figstudio/figprocess-worker/internal/clients"
)

// fakeVisionSeq records generation requests and replies with canned text
type fakeVisionSeq struct {
	response  string
	calls     int
	modelName string
	lastReq   *clients.GenerateRequest
}

func (f *fakeVisionSeq) Generate(ctx context.Context, modelName string, req *clients.GenerateRequest) (string, error) {
	f.calls++
	f.modelName = modelName
	f.lastReq = req
	return f.response, nil
}

func TestNewTableExtractorRegistry(t *testing.T) {
	model := &fakeVisionSeq{}

	for _, name := range []string{"unichart", "deplot", "UniChart", "DEPLOT"} {
		extractor, err := NewTableExtractor(name, model)
		require.NoError(t, err, "model %q should be registered", name)
		assert.NotNil(t, extractor)
	}

	_, err := NewTableExtractor("matcha", model)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "deplot")
	assert.Contains(t, err.Error(), "unichart")
}

func TestUniChartExtractorIsolatesAnswer(t *testing.T) {
	model := &fakeVisionSeq{
		response: "<extract_data_table> <s_answer> Epoch | Accuracy <0x0A> 1 | 0.62</s><pad>",
	}
	extractor, err := NewTableExtractor("unichart", model)
	require.NoError(t, err)

	table, err := extractor.ExtractTable(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "Epoch | Accuracy <0x0A> 1 | 0.62", table)
	assert.Equal(t, "unichart", model.modelName)
}

func TestUniChartExtractorGenerationParams(t *testing.T) {
	model := &fakeVisionSeq{response: "<s_answer> x | y"}
	extractor, err := NewTableExtractor("unichart", model)
	require.NoError(t, err)

	_, err = extractor.ExtractTable(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)

	req := model.lastReq
	require.NotNil(t, req)
	assert.Equal(t, "<extract_data_table> <s_answer>", req.DecoderInput)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Equal(t, 4, req.NumBeams)
	assert.True(t, req.EarlyStopping)
	assert.True(t, req.BanUnknown)
	assert.NotEmpty(t, req.Image)
}

func TestUniChartExtractorNoAnswerMarker(t *testing.T) {
	model := &fakeVisionSeq{response: "  bare table output  "}
	extractor, err := NewTableExtractor("unichart", model)
	require.NoError(t, err)

	table, err := extractor.ExtractTable(context.Background(), []byte("png"))
	require.NoError(t, err)

	assert.Equal(t, "bare table output", table)
}

func TestDeplotExtractorMapsLineSeparator(t *testing.T) {
	model := &fakeVisionSeq{
		response: "Epoch | Accuracy<0x0A>1 | 0.62<0x0A>2 | 0.71",
	}
	extractor, err := NewTableExtractor("deplot", model)
	require.NoError(t, err)

	table, err := extractor.ExtractTable(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "Epoch | Accuracy\n1 | 0.62\n2 | 0.71", table)
	assert.Equal(t, "deplot", model.modelName)
	assert.Equal(t, 1024, model.lastReq.MaxTokens)
}
