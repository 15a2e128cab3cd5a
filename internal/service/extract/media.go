package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

const (
	// MinDocumentText is the trimmed length under which a PDF is read as an image.
	MinDocumentText = 100
	// MaxDocumentText caps the text kept from a PDF.
	MaxDocumentText = 4000

	documentVisionPrompt = "Extraia o texto deste documento PDF"
)

// ImageDescriber is a vision-capable completion call.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, imageURL, instruction string) (string, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// ImageExtractor describes images through the vision model. Failures resolve to
// ImageApology with Fallback set.
type ImageExtractor struct {
	Vision ImageDescriber
	Logger *slog.Logger
}

func (e ImageExtractor) Extract(ctx context.Context, msg conversation.InboundMessage) (Result, error) {
	if msg.MediaURL == "" {
		return Result{}, fmt.Errorf("%w: image without url", ErrUnsupportedContent)
	}

	text, err := e.Vision.DescribeImage(ctx, msg.MediaURL, msg.Text)
	if err != nil {
		logger(e.Logger).Warn("image description failed", "contact", msg.ContactID, "error", err)
		return Result{Kind: conversation.KindImage, Text: ImageApology, Fallback: true}, nil
	}
	return Result{Kind: conversation.KindImage, Text: text}, nil
}

// AudioExtractor downloads and transcribes voice notes. Failures resolve to an
// empty result, which the caller ignores.
type AudioExtractor struct {
	Fetcher     Fetcher
	Transcriber Transcriber
	Logger      *slog.Logger
}

func (e AudioExtractor) Extract(ctx context.Context, msg conversation.InboundMessage) (Result, error) {
	if msg.MediaURL == "" {
		return Result{}, fmt.Errorf("%w: audio without url", ErrUnsupportedContent)
	}
	log := logger(e.Logger)

	data, contentType, err := e.Fetcher.Fetch(ctx, msg.MediaURL)
	if err != nil {
		log.Warn("audio download failed", "contact", msg.ContactID, "error", err)
		return Result{Kind: conversation.KindAudio}, nil
	}

	mimeType := msg.MimeType
	if mimeType == "" {
		mimeType = contentType
	}

	text, err := e.Transcriber.Transcribe(ctx, data, mimeType)
	if err != nil {
		log.Warn("audio transcription failed", "contact", msg.ContactID, "error", err)
		return Result{Kind: conversation.KindAudio}, nil
	}
	return Result{Kind: conversation.KindAudio, Text: strings.TrimSpace(text)}, nil
}

// PDFParser reads PDF documents.
type PDFParser interface {
	// Text returns the text layer of every page.
	Text(data []byte) (string, error)
	// RenderFirstPage returns page one as PNG.
	RenderFirstPage(data []byte) ([]byte, error)
}

// DocumentExtractor reads PDFs. When the text layer is too thin the first page
// is rendered and read by the vision model, exactly once.
type DocumentExtractor struct {
	Fetcher Fetcher
	Parser  PDFParser
	Vision  ImageDescriber
	Logger  *slog.Logger
}

func (e DocumentExtractor) Extract(ctx context.Context, msg conversation.InboundMessage) (Result, error) {
	if !IsPDF(msg.FileName, msg.MimeType) {
		return Result{}, fmt.Errorf("%w: document %q (%s) is not a PDF", ErrUnsupportedContent, msg.FileName, msg.MimeType)
	}
	if msg.MediaURL == "" {
		return Result{}, fmt.Errorf("%w: document without url", ErrUnsupportedContent)
	}
	log := logger(e.Logger)

	data, _, err := e.Fetcher.Fetch(ctx, msg.MediaURL)
	if err != nil {
		log.Warn("document download failed", "contact", msg.ContactID, "error", err)
		return Result{Kind: conversation.KindDocument}, nil
	}

	text, err := e.Parser.Text(data)
	if err != nil {
		log.Warn("pdf text extraction failed", "contact", msg.ContactID, "error", err)
		text = ""
	}

	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) >= MinDocumentText {
		return Result{Kind: conversation.KindDocument, Text: truncate(text, MaxDocumentText)}, nil
	}

	png, err := e.Parser.RenderFirstPage(data)
	if err != nil {
		log.Warn("pdf render failed", "contact", msg.ContactID, "error", err)
		return Result{Kind: conversation.KindDocument, Text: trimmed}, nil
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	described, err := e.Vision.DescribeImage(ctx, dataURL, documentVisionPrompt)
	if err != nil {
		log.Warn("pdf vision fallback failed", "contact", msg.ContactID, "error", err)
		return Result{Kind: conversation.KindDocument, Text: trimmed}, nil
	}
	log.Info("pdf read through vision fallback", "contact", msg.ContactID, "text_chars", utf8.RuneCountInString(trimmed))
	return Result{Kind: conversation.KindDocument, Text: truncate(described, MaxDocumentText)}, nil
}

// IsPDF decides by file extension first, then by MIME type.
func IsPDF(fileName, mimeType string) bool {
	if strings.EqualFold(path.Ext(fileName), ".pdf") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	return err == nil && mediaType == "application/pdf"
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
