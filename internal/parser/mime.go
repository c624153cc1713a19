package parser

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/docrag/internal/ragerr"
)

// ErrUnsupportedType reports a content type no parser handles.
var ErrUnsupportedType = errors.New("unsupported content type")

// ErrNoText reports a document that parsed but held no extractable text.
var ErrNoText = errors.New("no extractable text")

// Content types with a dedicated parser.
const (
	TypePlain    = "text/plain"
	TypeMarkdown = "text/markdown"
	TypeHTML     = "text/html"
	TypeCSV      = "text/csv"
	TypePDF      = "application/pdf"
	TypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeMSWord   = "application/msword"
	typeBinary   = "application/octet-stream"
)

// Extractor turns an uploaded document into normalized plain text.
type Extractor struct {
	// PDFFallback enables the pdftotext fallback for PDFs.
	PDFFallback bool
}

// ForContentType returns the parser for a MIME type. Parameters such as
// charset are ignored. An empty or generic binary type falls back to the
// file extension.
func (e Extractor) ForContentType(contentType, fileName string) (Parser, error) {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}

	switch {
	case mt == "" || mt == typeBinary:
		p, err := ForFile(fileName)
		if err != nil {
			return nil, err
		}
		if pdf, ok := p.(*PDFParser); ok {
			pdf.FallbackPdftotext = e.PDFFallback
		}
		return p, nil
	case mt == TypeMarkdown || mt == "text/x-markdown":
		return &MarkdownParser{}, nil
	case mt == TypeHTML || mt == "application/xhtml+xml":
		return &HTMLParser{}, nil
	case mt == TypeCSV:
		return &CSVParser{}, nil
	case mt == TypePDF:
		return &PDFParser{FallbackPdftotext: e.PDFFallback}, nil
	case mt == TypeDOCX || mt == TypeMSWord:
		return &DOCXParser{}, nil
	case strings.HasPrefix(mt, "text/"):
		return &TextParser{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt)
}

// Extract parses data and returns its text as NFC-normalized paragraphs.
// All failures are extraction errors; unsupported types also match
// ErrUnsupportedType and empty documents match ErrNoText.
func (e Extractor) Extract(contentType string, data []byte, fileName string) (string, error) {
	p, err := e.ForContentType(contentType, fileName)
	if err != nil {
		return "", ragerr.Extraction("select parser", fileName, err)
	}
	tree, err := p.Parse(bytes.NewReader(data), fileName)
	if err != nil {
		return "", ragerr.Extraction("parse", fileName, err)
	}
	text := norm.NFC.String(tree.Text())
	if strings.TrimSpace(text) == "" {
		return "", ragerr.Extraction("extract", fileName, ErrNoText)
	}
	return text, nil
}
