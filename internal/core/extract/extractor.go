package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/core"
)

const (
	mimePDF  = "application/pdf"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDoc  = "application/msword"
)

// Extractor converts raw file bytes into UTF-8 text. Format parser failures
// never escape: they become placeholder text so the pipeline can finish with
// a degraded-but-visible result the user sees as document content. Only an
// unsupported MIME type is an error.
type Extractor struct {
	log *zap.SugaredLogger
}

var _ core.TextExtractor = (*Extractor)(nil)

func NewExtractor(log *zap.SugaredLogger) *Extractor {
	return &Extractor{log: log}
}

func (e *Extractor) Extract(data []byte, mimeType string) (string, error) {
	mt := normalizeMime(mimeType)
	switch {
	case strings.HasPrefix(mt, "text/"):
		return e.extractPlain(data), nil
	case mt == mimePDF:
		return e.extractPDF(data), nil
	case mt == mimeDocx || mt == mimeDoc:
		return e.extractWord(data, mt), nil
	default:
		return "", fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, mimeType)
	}
}

func (e *Extractor) extractPlain(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

// extractPDF walks the embedded text layer page by page. A scanned or
// image-only PDF parses fine but yields no characters; returning empty text
// would silently produce a useless zero-chunk document, so both that case
// and parser failures come back as descriptive placeholder text.
func (e *Extractor) extractPDF(data []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("pdf parser panic", "panic", r)
			text = fmt.Sprintf("[PDF extraction failed: parser error (%v). The file may be corrupted.]", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.log.Warnw("pdf open failed", "error", err, "size", len(data))
		return fmt.Sprintf("[PDF extraction failed: %v. The file may be corrupted or password-protected.]", err)
	}

	var b strings.Builder
	totalPages := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.log.Warnw("pdf page extraction failed", "page", pageIndex, "error", err)
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	if strings.TrimSpace(b.String()) == "" {
		return fmt.Sprintf("[PDF document with %d page(s) but no extractable text layer. It may contain only scanned images; OCR is not applied.]", totalPages)
	}
	return b.String()
}

func (e *Extractor) extractWord(data []byte, mimeType string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("word parser panic", "panic", r)
			text = fmt.Sprintf("[Word document extraction failed: parser error (%v).]", r)
		}
	}()

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		e.log.Warnw("word extraction failed", "error", err, "size", len(data))
		return fmt.Sprintf("[Word document extraction failed: %v. The file may be corrupted.]", err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return "[Word document contained no extractable text.]"
	}
	return res.Body
}

func normalizeMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	// Strip parameters like "; charset=utf-8".
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
