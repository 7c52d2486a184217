package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
	"github.com/joseph-ayodele/podcheck/internal/provider"
)

const receiptPayload = `{"status":"complete","pages":[{"page":1,"text_lines":[
	{"text":"Data: 05/03/2024","confidence":0.95},
	{"text":"Recebedor: Maria Souza","confidence":0.9},
	{"text":"Assinatura: ________","confidence":0.9},
	{"text":"Rastreio BR123456789BR","confidence":0.92}
]}]}`

type fakeProvider struct {
	name     string
	mode     constants.Mode
	payload  func(doc entity.SourceDocument) (string, error)
	calls    atomic.Int32
	closes   atomic.Int32
	closeErr error
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) Mode() constants.Mode { return f.mode }
func (f *fakeProvider) Close() error {
	f.closes.Add(1)
	return f.closeErr
}

func (f *fakeProvider) Process(_ context.Context, doc entity.SourceDocument) (provider.RawResult, error) {
	f.calls.Add(1)
	body, err := f.payload(doc)
	if err != nil {
		return provider.RawResult{}, err
	}
	return provider.RawResult{Engine: f.name, Mode: f.mode, RequestID: "req-" + doc.Filename, Status: "complete", Payload: json.RawMessage(body)}, nil
}

func primaryOK() *fakeProvider {
	return &fakeProvider{
		name: "datalab_api",
		mode: constants.ModeDatalabAPI,
		payload: func(entity.SourceDocument) (string, error) {
			return receiptPayload, nil
		},
	}
}

func gateWithScore(score float64, reasons ...string) *fakeProvider {
	q, _ := json.Marshal(map[string]any{"score_min": score, "score_avg": score, "reasons": reasons})
	return &fakeProvider{
		name: "gdocai_gate",
		mode: constants.ModeGDocAI,
		payload: func(entity.SourceDocument) (string, error) {
			return fmt.Sprintf(`{"lines":[{"text":"CANHOTO","confidence":0.8,"page":1}],"quality":%s}`, q), nil
		},
	}
}

type fakeReader struct {
	mu    sync.Mutex
	fail  map[string]error
	reads []string
}

func (r *fakeReader) Read(_ context.Context, path string) (entity.SourceDocument, error) {
	r.mu.Lock()
	r.reads = append(r.reads, path)
	r.mu.Unlock()
	if err := r.fail[path]; err != nil {
		return entity.SourceDocument{}, err
	}
	return entity.SourceDocument{Path: path, Filename: filepath.Base(path), MediaType: "image/jpeg", Content: []byte(path)}, nil
}

func opts(useGate bool) Options {
	return Options{UseGate: useGate, QualityMinScore: 0.55, FieldMinConfidence: 0.75}
}

func TestNew_Configuration(t *testing.T) {
	var cerr *common.ConfigurationError

	_, err := New(nil, nil, opts(false), nil)
	require.ErrorAs(t, err, &cerr)

	_, err = New(primaryOK(), nil, opts(true), nil)
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "GDOC_PROCESSOR_ID")

	p, err := New(primaryOK(), gateWithScore(0.9), opts(false), nil)
	require.NoError(t, err)
	assert.Nil(t, p.gate, "a gate provider is ignored when the gate is disabled")
	assert.Equal(t, constants.ModeDatalabAPI, p.Options().Mode)
	assert.NotNil(t, p.Options().Registry)
	assert.Equal(t, entity.Thresholds{QualityMinScore: 0.55, FieldMinConfidence: 0.75}, p.Thresholds())
}

func TestProcess_GateFailureSkipsPrimary(t *testing.T) {
	primary := primaryOK()
	gate := gateWithScore(0.3, "motion_blur (0.91)")
	p, err := New(primary, gate, opts(true), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/blurry.jpg")
	require.NoError(t, res.Err)
	require.NotNil(t, res.Outcome)
	out := *res.Outcome

	assert.True(t, out.SkippedExtraction)
	assert.Equal(t, constants.ResultStatusSkipped, res.Status())
	assert.Equal(t, "quality gate failed", res.SkipReason)
	assert.Equal(t, "gdocai_gate", out.EngineUsed)
	assert.Equal(t, []string{"gdocai_gate"}, out.EngineChain)
	assert.Zero(t, primary.calls.Load())
	assert.False(t, out.QualityGate.Pass)
	assert.Equal(t, []string{"Keep the device still while capturing."}, out.QualityGate.Hints)
	assert.Contains(t, out.Artifacts, ArtifactGateRaw)
	assert.Contains(t, out.Artifacts, ArtifactGateLines)
	assert.Contains(t, out.Artifacts, ArtifactGateQuality)
	assert.Contains(t, out.Latencies, LatencyGate)
	assert.Contains(t, out.Latencies, LatencyTotal)
	assert.NotContains(t, out.Latencies, LatencyPrimary)

	require.NotNil(t, res.Validation)
	assert.Equal(t, entity.DecisionRejected, res.Validation.Decision)
	assert.Zero(t, res.Validation.DecisionScore, "gate lines carry none of the fields")
	assert.Contains(t, res.Validation.Issues, "quality below threshold (0.30 < 0.55)")
	assert.Equal(t, "gdocai_gate", res.Validation.EngineUsed)
}

func TestProcess_GatePassInjectsQuality(t *testing.T) {
	primary := primaryOK()
	gate := gateWithScore(0.8)
	p, err := New(primary, gate, opts(true), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/good.jpg")
	require.NoError(t, res.Err)
	out := *res.Outcome

	assert.False(t, out.SkippedExtraction)
	assert.Equal(t, constants.ResultStatusProcessed, res.Status())
	assert.Empty(t, res.SkipReason)
	assert.Equal(t, []string{"gdocai_gate", "datalab_api"}, out.EngineChain)
	assert.Equal(t, "datalab_api", out.EngineUsed)
	assert.Equal(t, int32(1), primary.calls.Load())
	require.NotNil(t, out.Normalized.Quality.ScoreMin)
	assert.InDelta(t, 0.8, *out.Normalized.Quality.ScoreMin, 1e-9)
	assert.True(t, out.QualityGate.Pass)
	assert.Contains(t, out.Artifacts, "datalab_api_raw")
	assert.Contains(t, out.Latencies, LatencyPrimary)
	assert.Equal(t, "req-good.jpg", out.Normalized.RequestID)

	v := res.Validation
	assert.Equal(t, entity.DecisionOK, v.Decision)
	assert.InDelta(t, 0.8, v.DecisionScore, 1e-9)
	assert.Equal(t, "Maria Souza", v.Fields["recipient_name"].Value.String())
	assert.Equal(t, "2024-03-05", v.Fields["date"].Value.String())
	assert.Equal(t, "BR123456789BR", v.Fields["tracking_code"].Value.String())
}

func primaryLines(conf float64, texts ...string) *fakeProvider {
	lines := make([]map[string]any, len(texts))
	for i, text := range texts {
		lines[i] = map[string]any{"text": text, "confidence": conf}
	}
	body, _ := json.Marshal(map[string]any{"status": "complete", "pages": []any{map[string]any{"page": 1, "text_lines": lines}}})
	return &fakeProvider{
		name: "datalab_api",
		mode: constants.ModeDatalabAPI,
		payload: func(entity.SourceDocument) (string, error) {
			return string(body), nil
		},
	}
}

func TestHandle_ShortInvoiceNumberIsNotATrackingCode(t *testing.T) {
	primary := primaryLines(0.95, "Recebedor: Maria Silva", "Data: 12/05/2024", "NF 123456789")
	p, err := New(primary, nil, opts(false), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/nf.jpg")
	require.NoError(t, res.Err)
	v := res.Validation

	assert.Equal(t, "Maria Silva", v.Fields["recipient_name"].Value.String())
	assert.Equal(t, "2024-05-12", v.Fields["date"].Value.String())
	assert.True(t, v.Fields["tracking_code"].Value.IsNull(), "nine digits is below the long-number rule")
	signed, ok := v.Fields["signature_present"].Value.Bool()
	assert.True(t, ok)
	assert.False(t, signed)

	assert.Equal(t, entity.DecisionRejected, v.Decision)
	assert.Zero(t, v.DecisionScore)
	assert.Contains(t, v.Issues, "required field 'tracking_code' was not found")
	assert.Contains(t, v.Issues, "signature not detected on the receipt")
}

func TestHandle_SignedReceiptWithLongNumberIsOK(t *testing.T) {
	primary := primaryLines(0.95,
		"Recebedor: Maria Silva",
		"Data: 12/05/2024",
		"NF 1234567890",
		"Assinatura: ________",
	)
	p, err := New(primary, nil, opts(false), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/nf.jpg")
	require.NoError(t, res.Err)
	v := res.Validation

	assert.Equal(t, entity.DecisionOK, v.Decision, v.Issues)
	assert.Empty(t, v.Issues)
	assert.Equal(t, "Maria Silva", v.Fields["recipient_name"].Value.String())
	assert.Equal(t, "2024-05-12", v.Fields["date"].Value.String())
	assert.Equal(t, "1234567890", v.Fields["tracking_code"].Value.String())
}

func TestProcess_NoGateUnknownQualityPasses(t *testing.T) {
	p, err := New(primaryOK(), nil, opts(false), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/plain.jpg")
	require.NoError(t, res.Err)
	out := *res.Outcome

	assert.Equal(t, []string{"datalab_api"}, out.EngineChain)
	assert.Nil(t, out.QualityGate.ScoreMin)
	assert.True(t, out.QualityGate.Pass)
	assert.NotContains(t, out.Artifacts, ArtifactGateRaw)
	assert.NotContains(t, out.Latencies, LatencyGate)

	assert.Equal(t, entity.DecisionOK, res.Validation.Decision)
	assert.InDelta(t, 0.55, res.Validation.DecisionScore, 1e-9, "unknown quality contributes the threshold")
}

func TestProcess_PrimaryLowQualityIsRejectedNotSkipped(t *testing.T) {
	primary := &fakeProvider{
		name: "gdocai",
		mode: constants.ModeGDocAI,
		payload: func(entity.SourceDocument) (string, error) {
			return `{"lines":[{"text":"Recebedor: Ana","confidence":0.9,"page":1}],"quality":{"score_min":0.2}}`, nil
		},
	}
	p, err := New(primary, nil, opts(false), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/dark.png")
	require.NoError(t, res.Err)
	assert.False(t, res.Outcome.SkippedExtraction)
	assert.False(t, res.Outcome.QualityGate.Pass)
	assert.Equal(t, entity.DecisionRejected, res.Validation.Decision)
}

func TestProcess_GateErrorFailsDocument(t *testing.T) {
	gate := &fakeProvider{
		name: "gdocai_gate",
		mode: constants.ModeGDocAI,
		payload: func(entity.SourceDocument) (string, error) {
			return "", common.NewSubmissionError("gdocai_gate", 503, "unavailable", nil)
		},
	}
	primary := primaryOK()
	p, err := New(primary, gate, opts(true), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/a.jpg")
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "quality gate gdocai_gate")
	assert.Equal(t, common.CodeSubmission, res.SkipReason)
	assert.Equal(t, constants.ResultStatusFailed, res.Status())
	assert.Nil(t, res.Outcome)
	assert.Zero(t, primary.calls.Load())
	assert.Contains(t, res.Latencies, LatencyGate)
	assert.Contains(t, res.Latencies, LatencyTotal)
	assert.NotContains(t, res.Latencies, LatencyPrimary)
}

func TestProcess_PrimaryErrorKeepsLatencies(t *testing.T) {
	primary := primaryOK()
	primary.payload = func(entity.SourceDocument) (string, error) {
		return "", common.NewProviderProcessingError("datalab_api", "req-1", "ocr failed")
	}
	p, err := New(primary, gateWithScore(0.9), opts(true), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/a.jpg")
	require.Error(t, res.Err)
	assert.Nil(t, res.Outcome)
	for _, key := range []string{LatencyGate, LatencyPrimary, LatencyTotal} {
		require.Contains(t, res.Latencies, key)
		assert.GreaterOrEqual(t, res.Latencies[key], 0.0)
	}
	assert.GreaterOrEqual(t, res.Latencies[LatencyTotal], res.Latencies[LatencyPrimary])
}

func TestProcess_MalformedPayload(t *testing.T) {
	primary := &fakeProvider{
		name:    "datalab_api",
		mode:    constants.ModeDatalabAPI,
		payload: func(entity.SourceDocument) (string, error) { return `{"pages":7}`, nil },
	}
	p, err := New(primary, nil, opts(false), nil)
	require.NoError(t, err)

	res := p.Handle(context.Background(), &fakeReader{}, "/in/a.jpg")
	var nerr *common.NormalizationError
	require.ErrorAs(t, res.Err, &nerr)
	assert.Equal(t, common.CodeNormalize, res.SkipReason)
}

func TestProcess_CancelledContext(t *testing.T) {
	primary := primaryOK()
	p, err := New(primary, nil, opts(false), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Process(ctx, entity.SourceDocument{Filename: "a.jpg"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, primary.calls.Load())
}

func TestRun_PollTimeoutDoesNotStopTheRun(t *testing.T) {
	primary := primaryOK()
	primary.payload = func(doc entity.SourceDocument) (string, error) {
		if doc.Filename == "slow.jpg" {
			return "", common.NewPollTimeoutError("datalab_api", "req-slow", 3)
		}
		return receiptPayload, nil
	}
	p, err := New(primary, nil, opts(false), nil)
	require.NoError(t, err)

	reader := &fakeReader{fail: map[string]error{"/in/missing.jpg": errors.New("no such file")}}
	paths := []string{"/in/a.jpg", "/in/slow.jpg", "/in/missing.jpg", "/in/b.jpg"}

	var results []Result
	for r := range p.Run(context.Background(), reader, paths) {
		results = append(results, r)
	}
	require.Len(t, results, 4)

	assert.Equal(t, constants.ResultStatusProcessed, results[0].Status())

	var perr *common.PollTimeoutError
	require.ErrorAs(t, results[1].Err, &perr)
	assert.Equal(t, common.CodePollTimeout, results[1].SkipReason)
	assert.Equal(t, "slow.jpg", results[1].Filename())

	assert.Equal(t, constants.ResultStatusFailed, results[2].Status())
	assert.Equal(t, "read failed", results[2].SkipReason)
	assert.Equal(t, "missing.jpg", results[2].Filename())

	assert.Equal(t, constants.ResultStatusProcessed, results[3].Status())
	assert.Equal(t, int32(3), primary.calls.Load())
}

func TestRun_StopsWhenConsumerStops(t *testing.T) {
	p, err := New(primaryOK(), nil, opts(false), nil)
	require.NoError(t, err)
	reader := &fakeReader{}

	for range p.Run(context.Background(), reader, []string{"/in/a.jpg", "/in/b.jpg", "/in/c.jpg"}) {
		break
	}
	assert.Equal(t, []string{"/in/a.jpg"}, reader.reads)

	n := 0
	for range p.Run(context.Background(), reader, nil) {
		n++
	}
	assert.Zero(t, n)
}

func TestRun_StopsOnCancel(t *testing.T) {
	p, err := New(primaryOK(), nil, opts(false), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	for range p.Run(ctx, &fakeReader{}, []string{"/in/a.jpg", "/in/b.jpg", "/in/c.jpg"}) {
		n++
		cancel()
	}
	assert.Equal(t, 1, n)
}

func TestRunConcurrent_KeepsOrder(t *testing.T) {
	primary := primaryOK()
	p, err := New(primary, nil, opts(false), nil)
	require.NoError(t, err)

	paths := make([]string, 12)
	for i := range paths {
		paths[i] = fmt.Sprintf("/in/doc%02d.jpg", i)
	}
	results := p.RunConcurrent(context.Background(), &fakeReader{}, paths, 4, 0)
	require.Len(t, results, len(paths))
	for i, r := range results {
		assert.Equal(t, paths[i], r.Source)
		assert.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("doc%02d.jpg", i), r.Filename())
	}
	assert.Equal(t, int32(len(paths)), primary.calls.Load())
	assert.Empty(t, p.RunConcurrent(context.Background(), &fakeReader{}, nil, 4, 0))
}

func TestRunConcurrent_Cancelled(t *testing.T) {
	p, err := New(primaryOK(), nil, opts(false), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := p.RunConcurrent(ctx, &fakeReader{}, []string{"/in/a.jpg", "/in/b.jpg"}, 2, 1)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Error(t, r.Err)
		assert.Equal(t, "cancelled", r.SkipReason)
		assert.Equal(t, constants.ResultStatusFailed, r.Status())
	}
}

func TestClose_ClosesProvidersOnce(t *testing.T) {
	primary := primaryOK()
	primary.closeErr = errors.New("primary close")
	gate := gateWithScore(0.9)
	p, err := New(primary, gate, opts(true), nil)
	require.NoError(t, err)

	err1 := p.Close()
	err2 := p.Close()
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Contains(t, err1.Error(), "close datalab_api")
	assert.Equal(t, int32(1), primary.closes.Load())
	assert.Equal(t, int32(1), gate.closes.Load())
}

func TestNewFromConfig(t *testing.T) {
	cfg := common.DefaultConfig()
	cfg.Datalab.APIKey = "key"

	p, err := NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "datalab_api", p.primary.Name())
	assert.Nil(t, p.gate)
	require.NoError(t, p.Close())

	cfg.Pipeline.UseGate = true
	_, err = NewFromConfig(context.Background(), cfg, nil)
	var cerr *common.ConfigurationError
	require.ErrorAs(t, err, &cerr, "gate without Document AI settings")

	cfg = common.DefaultConfig()
	cfg.Pipeline.Mode = constants.ModeChandra
	p, err = NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "chandra", p.primary.Name())
	require.NoError(t, p.Close())

	cfg.Pipeline.Mode = "tesseract"
	_, err = NewFromConfig(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, common.ErrUnsupportedMode)

	cfg = common.DefaultConfig()
	_, err = NewFromConfig(context.Background(), cfg, nil)
	require.ErrorAs(t, err, &cerr, "datalab without an API key")
}
