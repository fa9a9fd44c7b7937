// Package parser turns catalogue page markup into book records.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pkgerrors "github.com/pkg/errors"

	"github.com/aluiziolira/go-scrape-books-gce/models"
)

// Selectors for the catalogue markup contract.
const (
	ProductSelector      = "article.product_pod"
	titleSelector        = "h3 a"
	imageSelector        = ".image_container a img"
	priceSelector        = ".product_price .price_color"
	availabilitySelector = ".instock.availability"
	ratingSelector       = ".star-rating"
)

// MissingFieldError reports a product container without an expected element
// or attribute.
type MissingFieldError struct {
	Field    string
	Selector string
	Index    int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("product %d: missing %s (%s)", e.Index, e.Field, e.Selector)
}

// Extractor parses catalogue pages from a fixed site layout.
type Extractor struct {
	baseURL string
}

// NewExtractor builds an Extractor that resolves image paths against baseURL.
func NewExtractor(baseURL string) *Extractor {
	return &Extractor{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Extract returns one Book per product container, in document order. The
// first container missing a field aborts extraction of the whole page.
func (x *Extractor) Extract(content []byte) ([]models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse page html")
	}

	containers := doc.Find(ProductSelector)
	books := make([]models.Book, 0, containers.Length())
	var extractErr error
	containers.EachWithBreak(func(i int, s *goquery.Selection) bool {
		book, err := x.extractBook(i, s)
		if err != nil {
			extractErr = err
			return false
		}
		books = append(books, book)
		return true
	})
	if extractErr != nil {
		return nil, extractErr
	}
	return books, nil
}

func (x *Extractor) extractBook(i int, s *goquery.Selection) (models.Book, error) {
	title, err := attr(s, i, "title", titleSelector, "title")
	if err != nil {
		return models.Book{}, err
	}
	src, err := attr(s, i, "image", imageSelector, "src")
	if err != nil {
		return models.Book{}, err
	}
	price, err := text(s, i, "price", priceSelector)
	if err != nil {
		return models.Book{}, err
	}
	availability, err := text(s, i, "in_stock", availabilitySelector)
	if err != nil {
		return models.Book{}, err
	}
	class, err := attr(s, i, "rating", ratingSelector, "class")
	if err != nil {
		return models.Book{}, err
	}
	rating := RatingFromClass(class)
	if rating == "" {
		return models.Book{}, missing(i, "rating", ratingSelector)
	}

	book := models.Book{
		Title:    title,
		ImageURL: x.ImageURL(src),
		Price:    price,
		InStock:  NormalizeAvailability(availability),
		Rating:   rating,
	}
	if err := ValidateBook(book); err != nil {
		return models.Book{}, pkgerrors.Wrapf(err, "product %d", i)
	}
	return book, nil
}

// ImageURL rewrites a relative catalogue image path to an absolute URL.
func (x *Extractor) ImageURL(src string) string {
	return x.baseURL + strings.ReplaceAll(src, "..", "")
}

// ValidateBook ensures every field was located. Empty text is allowed; the
// markup decides presence, not content.
func ValidateBook(b models.Book) error {
	if b.ImageURL == "" {
		return fmt.Errorf("book missing image url for %q", b.Title)
	}
	if strings.TrimSpace(b.Rating) == "" {
		return fmt.Errorf("book missing rating for %q", b.Title)
	}
	return nil
}

// NormalizeAvailability strips embedded newlines and surrounding whitespace.
func NormalizeAvailability(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", ""))
}

// RatingFromClass returns the last token of a class attribute, which is
// where the catalogue encodes the star rating.
func RatingFromClass(class string) string {
	parts := strings.Fields(class)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func first(s *goquery.Selection, i int, field, selector string) (*goquery.Selection, error) {
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return nil, missing(i, field, selector)
	}
	return found, nil
}

func attr(s *goquery.Selection, i int, field, selector, name string) (string, error) {
	found, err := first(s, i, field, selector)
	if err != nil {
		return "", err
	}
	value, ok := found.Attr(name)
	if !ok {
		return "", missing(i, field, selector+"["+name+"]")
	}
	return value, nil
}

func text(s *goquery.Selection, i int, field, selector string) (string, error) {
	found, err := first(s, i, field, selector)
	if err != nil {
		return "", err
	}
	return found.Text(), nil
}

func missing(i int, field, selector string) error {
	return pkgerrors.WithStack(&MissingFieldError{Field: field, Selector: selector, Index: i})
}
