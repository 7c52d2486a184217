package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/podcheck/internal/entity"
)

func ln(text string, conf float64, page int) entity.OCRLine {
	return entity.OCRLine{Text: text, Confidence: entity.Float(conf), Page: page, BBox: &entity.BBox{0, 0, 1, 1}}
}

func strValue(t *testing.T, f entity.ExtractedField) string {
	t.Helper()
	s, ok := f.Value.Str()
	require.True(t, ok, "field %s is not a string: %v", f.Name, f.Value)
	return s
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"05/03/2024", "2024-03-05", true},
		{"5-3-24", "2024-03-05", true},
		{"01/01/75", "1975-01-01", true},
		{"31/12/49", "2049-12-31", true},
		{"2024-03-05", "2024-03-05", true},
		{"2024/3/5", "2024-03-05", true},
		{"31/02/2024", "", false},
		{"29/02/2023", "", false},
		{"29/02/2024", "2024-02-29", true},
		{"12/13/2024", "", false},
		{"1/1/202", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestExtract_AllFields(t *testing.T) {
	lines := []entity.OCRLine{
		ln("CANHOTO DE ENTREGA", 0.99, 1),
		ln("Data: 05/03/2024", 0.8, 1),
		ln("Entregue em 06/03/2024", 0.95, 1),
		ln("Recebedor: Maria Souza 123", 0.88, 1),
		ln("Assinatura: ________", 0.7, 2),
		ln("Objeto BR123456789BR", 0.6, 2),
	}
	fields := Extract(lines, entity.JoinLines(lines))
	require.Len(t, fields, 4)

	date := fields[FieldDate]
	assert.Equal(t, "2024-03-06", strValue(t, date), "highest confidence wins")
	assert.InDelta(t, 0.95, *date.Confidence, 1e-9)
	assert.Equal(t, 1, date.Page)

	name := fields[FieldRecipientName]
	assert.Equal(t, "Maria Souza", strValue(t, name))
	assert.InDelta(t, 0.88, *name.Confidence, 1e-9)

	sig := fields[FieldSignaturePresent]
	v, ok := sig.Value.Bool()
	require.True(t, ok)
	assert.True(t, v)
	assert.InDelta(t, 0.9, *sig.Confidence, 1e-9)
	assert.Equal(t, 2, sig.Page)

	track := fields[FieldTrackingCode]
	assert.Equal(t, "BR123456789BR", strValue(t, track))
	assert.InDelta(t, 0.6, *track.Confidence, 1e-9)
}

func TestExtract_NothingFound(t *testing.T) {
	fields := Extract(nil, "")
	require.Len(t, fields, 4)

	for _, name := range []string{FieldDate, FieldRecipientName, FieldTrackingCode} {
		f := fields[name]
		assert.True(t, f.Value.IsNull(), name)
		require.NotNil(t, f.Confidence, name)
		assert.Zero(t, *f.Confidence, name)
	}
	sig := fields[FieldSignaturePresent]
	v, ok := sig.Value.Bool()
	require.True(t, ok)
	assert.False(t, v)
	assert.InDelta(t, 0.5, *sig.Confidence, 1e-9)
}

func TestDetectDate_TieKeepsEarliest(t *testing.T) {
	lines := []entity.OCRLine{ln("01/02/2024", 0.8, 1), ln("03/04/2024", 0.8, 1)}
	f := detectDate(lines, "")
	assert.Equal(t, "2024-02-01", strValue(t, f))
}

func TestDetectDate_SkipsImpossibleDates(t *testing.T) {
	lines := []entity.OCRLine{ln("31/02/2024", 0.99, 1), ln("28/02/2024", 0.5, 1)}
	f := detectDate(lines, "")
	assert.Equal(t, "2024-02-28", strValue(t, f))
}

func TestDetectSignature(t *testing.T) {
	f := detectSignature([]entity.OCRLine{ln("Assinatura do recebedor", 0.3, 1)}, "")
	v, _ := f.Value.Bool()
	assert.False(t, v, "keyword without trace")
	assert.InDelta(t, 0.6, *f.Confidence, 1e-9)

	f = detectSignature([]entity.OCRLine{ln("Signature ------", 0.95, 1)}, "")
	v, _ = f.Value.Bool()
	assert.True(t, v)
	assert.InDelta(t, 0.95, *f.Confidence, 1e-9)

	f = detectSignature([]entity.OCRLine{{Text: "assinatura ____", Page: 1}}, "")
	assert.InDelta(t, 0.9, *f.Confidence, 1e-9, "unknown confidence gets the trace floor")
}

func TestDetectTracking_Tiers(t *testing.T) {
	lines := []entity.OCRLine{
		ln("Pedido 12345678901", 0.99, 1),
		ln("Rastreio AB987654321CD", 0.5, 1),
	}
	f := detectTracking(lines, entity.JoinLines(lines))
	assert.Equal(t, "AB987654321CD", strValue(t, f), "strict codes beat long numbers")

	f = detectTracking([]entity.OCRLine{{Text: "Pedido 12345678901", Page: 1}}, "")
	assert.Equal(t, "12345678901", strValue(t, f))
	assert.InDelta(t, 0.6, *f.Confidence, 1e-9)

	f = detectTracking(nil, "texto\nXY123456789ZW\n")
	assert.Equal(t, "XY123456789ZW", strValue(t, f))
	assert.InDelta(t, 0.4, *f.Confidence, 1e-9)
	assert.Nil(t, f.BBox)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Maria Souza", CleanName(" - Maria   Souza 42 "))
	assert.Equal(t, "", CleanName(" :- "))
	assert.Equal(t, "", CleanName("________"))
	assert.Equal(t, "", CleanName("---- 123"))
	assert.Equal(t, "Maria Silva", CleanName("________ Maria Silva"))
	assert.Equal(t, "João", CleanName("João ____"))
}

func TestDetectRecipient_SignatureTraceIsNotAName(t *testing.T) {
	lines := []entity.OCRLine{
		ln("Recebedor: Maria Silva", 0.8, 1),
		ln("Assinatura: ________", 0.95, 1),
	}
	fields := Extract(lines, entity.JoinLines(lines))

	name := fields[FieldRecipientName]
	assert.Equal(t, "Maria Silva", strValue(t, name))
	require.NotNil(t, name.Confidence)
	assert.InDelta(t, 0.8, *name.Confidence, 1e-9)

	signed, ok := fields[FieldSignaturePresent].Value.Bool()
	assert.True(t, ok)
	assert.True(t, signed)
}

func TestDetectRecipient_OnlyTraceIsNotFound(t *testing.T) {
	lines := []entity.OCRLine{ln("Assinatura: ----------", 0.9, 1)}
	name := Extract(lines, entity.JoinLines(lines))[FieldRecipientName]
	assert.True(t, name.Value.IsNull())
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{FieldDate, FieldRecipientName, FieldSignaturePresent, FieldTrackingCode}, r.Names())

	k, ok := r.KindOf(FieldSignaturePresent)
	assert.True(t, ok)
	assert.Equal(t, KindBool, k)

	r.Register(Detector{Name: FieldDate, Kind: KindString, Detect: func([]entity.OCRLine, string) entity.ExtractedField {
		return entity.ExtractedField{Value: entity.StringValue("fixed"), Confidence: entity.Float(0.123456)}
	}})
	r.Register(Detector{Name: "vehicle_plate", Kind: KindString, Detect: func([]entity.OCRLine, string) entity.ExtractedField {
		return entity.ExtractedField{Value: entity.NullValue()}
	}})
	assert.Equal(t, []string{FieldDate, FieldRecipientName, FieldSignaturePresent, FieldTrackingCode, "vehicle_plate"}, r.Names())

	fields := r.Extract(nil, "")
	assert.Equal(t, FieldDate, fields[FieldDate].Name)
	assert.InDelta(t, 0.1235, *fields[FieldDate].Confidence, 1e-12)
	assert.Equal(t, "vehicle_plate", fields["vehicle_plate"].Name)
	assert.Nil(t, fields["vehicle_plate"].Confidence)
}
