// Package validator checks document intake requests and returns per-field
// error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion"
)

const maxTextLength = 1 << 20

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateDocumentRequest requires a positive id and non-blank text of
// bounded length.
func ValidateDocumentRequest(req *ingestion.DocumentRequest) error {
	errs := make(map[string]string)
	if req.DocumentID <= 0 {
		errs["document_id"] = "document_id must be a positive integer"
	}
	if strings.TrimSpace(req.Text) == "" {
		errs["text"] = "text is required and must not be blank"
	} else if len(req.Text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
