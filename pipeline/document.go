package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aluiziolira/go-scrape-books-gce/models"
)

const documentIndent = "    "

// EncodeDocument renders books as an indented JSON array in input order.
// HTML characters are written as-is and there is no trailing newline; a nil
// or empty slice encodes as [].
func EncodeDocument(books []models.Book) ([]byte, error) {
	if books == nil {
		books = []models.Book{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", documentIndent)
	if err := enc.Encode(books); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeDocument parses a document written by EncodeDocument. Unknown keys
// are rejected.
func DecodeDocument(data []byte) ([]models.Book, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var books []models.Book
	if err := dec.Decode(&books); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if books == nil {
		books = []models.Book{}
	}
	return books, nil
}
