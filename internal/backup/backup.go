package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wanderkit/wander/internal/domain"
	"github.com/wanderkit/wander/internal/store"
)

// ErrImportFormat rejects a malformed backup wholesale; nothing is applied.
var ErrImportFormat = errors.New("invalid backup format")

// Document is the backup file format shared with the import/export
// collaborator.
type Document struct {
	Items           []domain.BucketItem `json:"items"`
	CustomBuckets   []string            `json:"customBuckets"`
	CustomInterests []string            `json:"customInterests"`
	ExportedAt      time.Time           `json:"exportedAt"`
}

// rawDocument defers items decoding so a non-array items field can be
// rejected before anything else is looked at.
type rawDocument struct {
	Items           json.RawMessage `json:"items"`
	CustomBuckets   []string        `json:"customBuckets"`
	CustomInterests []string        `json:"customInterests"`
	ExportedAt      time.Time       `json:"exportedAt"`
}

// Export builds a backup document from the current item set and the custom
// classification lists.
func Export(items []domain.BucketItem, customBuckets, customInterests []string) ([]byte, error) {
	doc := Document{
		Items:           items,
		CustomBuckets:   customBuckets,
		CustomInterests: customInterests,
		ExportedAt:      time.Now().UTC(),
	}
	if doc.Items == nil {
		doc.Items = []domain.BucketItem{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}
	return b, nil
}

// Parse validates and decodes a backup document. A document whose items
// field is missing or not a JSON array fails with ErrImportFormat.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
	}
	trimmed := bytes.TrimSpace(raw.Items)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: items is not an array", ErrImportFormat)
	}

	doc := Document{
		CustomBuckets:   raw.CustomBuckets,
		CustomInterests: raw.CustomInterests,
		ExportedAt:      raw.ExportedAt,
	}
	if err := json.Unmarshal(raw.Items, &doc.Items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
	}
	for _, it := range doc.Items {
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("%w: item %s: %v", ErrImportFormat, it.ID, err)
		}
	}
	return &doc, nil
}

// Import replaces the entire local item set with the document's items.
// Parsing happens before any write, so a malformed backup leaves the
// existing set completely unchanged.
func Import(st store.Interface, data []byte) (*Document, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := st.ReplaceAll("", doc.Items); err != nil {
		return nil, err
	}
	return doc, nil
}
