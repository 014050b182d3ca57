package services

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// DocExtractService validates uploaded signing documents before they are
// stored and announced to the group.
type DocExtractService struct{}

func NewDocExtractService() *DocExtractService {
	return &DocExtractService{}
}

// InspectPDF parses the upload and returns its page count. Anything the PDF
// reader cannot open is rejected as a validation error rather than stored.
func (s *DocExtractService) InspectPDF(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, &ValidationError{Fields: map[string]string{"file": "File is not a readable PDF"}}
	}

	pages := reader.NumPage()
	if pages < 1 {
		return 0, &ValidationError{Fields: map[string]string{"file": "PDF has no pages"}}
	}
	return pages, nil
}
