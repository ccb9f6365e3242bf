// Package document converts uploaded files into plain text.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadablePDF indicates a PDF whose text could not be extracted.
var ErrUnreadablePDF = errors.New("unreadable pdf")

var pdfMagic = []byte("%PDF-")

// Decode returns the text content of an uploaded file.
//
// Files named *.pdf, or starting with the PDF header, are parsed and their
// page text extracted. Anything else is treated as UTF-8 text; invalid byte
// sequences are dropped rather than rejected.
func Decode(filename string, data []byte) (string, error) {
	if IsPDF(filename, data) {
		return ExtractPDF(data)
	}
	return DecodeText(data), nil
}

// IsPDF reports whether the upload should be parsed as a PDF.
func IsPDF(filename string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf") || bytes.HasPrefix(data, pdfMagic)
}

// DecodeText decodes data as UTF-8, dropping invalid sequences.
func DecodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}

// ExtractPDF extracts the plain text of every page, in page order.
func ExtractPDF(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	return DecodeText(buf.Bytes()), nil
}
