package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

type fakeVision struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []visionCall
}

type visionCall struct {
	url         string
	instruction string
}

func (f *fakeVision) DescribeImage(_ context.Context, imageURL, instruction string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, visionCall{url: imageURL, instruction: instruction})
	return f.reply, f.err
}

type fakeFetcher struct {
	data        []byte
	contentType string
	err         error
}

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	return f.data, f.contentType, f.err
}

type fakeTranscriber struct {
	text     string
	err      error
	mimeType string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, mimeType string) (string, error) {
	f.mimeType = mimeType
	return f.text, f.err
}

type fakeParser struct {
	text      string
	textErr   error
	png       []byte
	renderErr error
	renders   int
}

func (p *fakeParser) Text([]byte) (string, error) { return p.text, p.textErr }

func (p *fakeParser) RenderFirstPage([]byte) ([]byte, error) {
	p.renders++
	return p.png, p.renderErr
}

func message(kind conversation.ContentKind) conversation.InboundMessage {
	return conversation.InboundMessage{
		ID:        "msg-1",
		ContactID: "5511988887777",
		Channel:   conversation.ChannelWhatsApp,
		Kind:      kind,
		MediaURL:  "https://cdn.example/media",
	}
}

func TestRegistryTextPassesThrough(t *testing.T) {
	r := NewRegistry(nil)
	msg := message(conversation.KindText)
	msg.Text = "Olá, quanto custa uma tradução?"

	res, err := r.Extract(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, conversation.KindText, res.Kind)
	assert.Equal(t, msg.Text, res.Text)
	assert.Equal(t, msg.Text, res.TranscriptText())
	assert.Equal(t, msg.Text, res.Query())
}

func TestRegistryUnknownKindIsUnsupported(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Extract(context.Background(), message(conversation.KindUnsupported))
	assert.ErrorIs(t, err, ErrUnsupportedContent)

	_, err = r.Extract(context.Background(), message(conversation.KindImage))
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestRegistryRoutesByKindOnly(t *testing.T) {
	r := NewRegistry(nil)
	var routed []conversation.ContentKind
	for _, kind := range []conversation.ContentKind{conversation.KindImage, conversation.KindAudio, conversation.KindDocument} {
		r.Register(kind, ExtractorFunc(func(_ context.Context, msg conversation.InboundMessage) (Result, error) {
			routed = append(routed, kind)
			return Result{Text: "ok"}, nil
		}))
	}

	for i := 0; i < 2; i++ {
		msg := message(conversation.KindAudio)
		msg.Text = "legenda ignorada"
		res, err := r.Extract(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, conversation.KindAudio, res.Kind)
	}
	assert.Equal(t, []conversation.ContentKind{conversation.KindAudio, conversation.KindAudio}, routed)
}

func TestImageExtractorUsesCaptionAsInstruction(t *testing.T) {
	vision := &fakeVision{reply: "Diploma universitário em espanhol."}
	msg := message(conversation.KindImage)
	msg.Text = "Quanto custa traduzir?"

	res, err := ImageExtractor{Vision: vision}.Extract(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, "Diploma universitário em espanhol.", res.Text)
	require.Len(t, vision.calls, 1)
	assert.Equal(t, "Quanto custa traduzir?", vision.calls[0].instruction)
	assert.Equal(t, "Cliente enviou uma imagem. Descrição: Diploma universitário em espanhol.", res.Query())
}

func TestImageExtractorFailureFallsBackToApology(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(conversation.KindImage, ImageExtractor{Vision: &fakeVision{err: errors.New("vision down")}})

	res, err := r.Extract(context.Background(), message(conversation.KindImage))
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, ImageApology, res.Text)
	assert.Equal(t, "[Imagem recebida]", res.TranscriptText())
}

func TestAudioExtractorTranscribes(t *testing.T) {
	transcriber := &fakeTranscriber{text: "  preciso traduzir uma certidão  "}
	ex := AudioExtractor{
		Fetcher:     fakeFetcher{data: []byte("OggS"), contentType: "audio/ogg"},
		Transcriber: transcriber,
	}

	res, err := ex.Extract(context.Background(), message(conversation.KindAudio))
	require.NoError(t, err)
	assert.Equal(t, "preciso traduzir uma certidão", res.Text)
	assert.Equal(t, "audio/ogg", transcriber.mimeType)
	assert.Equal(t, "[Áudio]: preciso traduzir uma certidão", res.TranscriptText())
}

func TestAudioExtractorFailureIsEmpty(t *testing.T) {
	ex := AudioExtractor{
		Fetcher:     fakeFetcher{data: []byte("OggS")},
		Transcriber: &fakeTranscriber{err: errors.New("asr down")},
	}
	res, err := ex.Extract(context.Background(), message(conversation.KindAudio))
	require.NoError(t, err)
	assert.True(t, res.Empty())

	ex.Fetcher = fakeFetcher{err: errors.New("404")}
	res, err = ex.Extract(context.Background(), message(conversation.KindAudio))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestDocumentExtractorRejectsNonPDF(t *testing.T) {
	msg := message(conversation.KindDocument)
	msg.FileName = "contrato.docx"
	msg.MimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	_, err := DocumentExtractor{}.Extract(context.Background(), msg)
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestDocumentExtractorUsesTextLayer(t *testing.T) {
	parser := &fakeParser{text: strings.Repeat("a", 5000)}
	vision := &fakeVision{}
	msg := message(conversation.KindDocument)
	msg.FileName = "Certidao.PDF"

	res, err := DocumentExtractor{Fetcher: fakeFetcher{data: []byte("%PDF")}, Parser: parser, Vision: vision}.Extract(context.Background(), msg)
	require.NoError(t, err)
	assert.Len(t, res.Text, MaxDocumentText)
	assert.Zero(t, parser.renders)
	assert.Empty(t, vision.calls)
	assert.Equal(t, "[PDF]: "+strings.Repeat("a", 200)+"...", res.TranscriptText())
	assert.True(t, strings.HasPrefix(res.Query(), "Cliente enviou PDF com conteúdo: "))
}

func TestDocumentExtractorShortTextFallsBackToVisionOnce(t *testing.T) {
	parser := &fakeParser{text: "  página digitalizada  ", png: []byte{0x89, 'P', 'N', 'G'}}
	vision := &fakeVision{reply: "Certidão de casamento emitida em 1998."}
	msg := message(conversation.KindDocument)
	msg.MimeType = "application/pdf"

	res, err := DocumentExtractor{Fetcher: fakeFetcher{data: []byte("%PDF")}, Parser: parser, Vision: vision}.Extract(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "Certidão de casamento emitida em 1998.", res.Text)
	assert.Equal(t, 1, parser.renders)
	require.Len(t, vision.calls, 1)
	assert.Equal(t, documentVisionPrompt, vision.calls[0].instruction)
	assert.True(t, strings.HasPrefix(vision.calls[0].url, "data:image/png;base64,"))
}

func TestDocumentExtractorVisionFailureKeepsShortText(t *testing.T) {
	parser := &fakeParser{text: "RG 12.345.678-9", png: []byte{1}}
	vision := &fakeVision{err: errors.New("vision down")}
	msg := message(conversation.KindDocument)
	msg.FileName = "rg.pdf"

	res, err := DocumentExtractor{Fetcher: fakeFetcher{data: []byte("%PDF")}, Parser: parser, Vision: vision}.Extract(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "RG 12.345.678-9", res.Text)
	assert.Len(t, vision.calls, 1)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("a.pdf", ""))
	assert.True(t, IsPDF("", "application/pdf; charset=binary"))
	assert.False(t, IsPDF("a.png", "image/png"))
	assert.False(t, IsPDF("", ""))
}

func TestHTTPFetcherEnforcesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small":
			w.Header().Set("Content-Type", "audio/ogg")
			_, _ = w.Write([]byte("0123456789"))
		case "/large":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 0, 32)

	data, contentType, err := f.Fetch(context.Background(), srv.URL+"/small")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
	assert.Equal(t, "audio/ogg", contentType)

	_, _, err = f.Fetch(context.Background(), srv.URL+"/large")
	assert.ErrorIs(t, err, ErrMediaTooLarge)

	_, _, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}
