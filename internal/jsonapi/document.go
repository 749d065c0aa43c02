// Package jsonapi gives read access to JSON:API documents using gjson paths
// such as "data.attributes.username" or "errors.0.detail".
package jsonapi

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/youthweb/youthweb-bridge/internal/apierror"
)

// ErrInvalidDocument is returned by Parse for bodies that are not a JSON:API
// top-level document.
var ErrInvalidDocument = errors.New("invalid JSON:API document")

// Document is a parsed JSON:API document.
type Document struct {
	raw  []byte
	root gjson.Result
}

// Error is a single entry of a document's "errors" member.
type Error struct {
	ID     string
	Status string
	Code   string
	Title  string
	Detail string
}

// Parse validates body as a JSON:API document. A top-level document must be
// an object with at least one of "data", "errors" or "meta".
func Parse(body []byte) (*Document, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidDocument)
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidDocument)
	}

	if !root.Get("data").Exists() && !root.Get("errors").Exists() && !root.Get("meta").Exists() {
		return nil, fmt.Errorf("%w: one of data, errors or meta is required", ErrInvalidDocument)
	}

	return &Document{raw: body, root: root}, nil
}

// Has reports whether path exists in the document.
func (d *Document) Has(path string) bool {
	return d.root.Get(path).Exists()
}

// Get returns the value at path.
func (d *Document) Get(path string) gjson.Result {
	return d.root.Get(path)
}

// String returns the value at path as a string, or "" if it does not exist.
func (d *Document) String(path string) string {
	return d.root.Get(path).String()
}

// Data returns the primary data member.
func (d *Document) Data() gjson.Result {
	return d.root.Get("data")
}

// Errors returns the document's error objects in order.
func (d *Document) Errors() []Error {
	var errs []Error
	d.root.Get("errors").ForEach(func(_, e gjson.Result) bool {
		errs = append(errs, Error{
			ID:     e.Get("id").String(),
			Status: e.Get("status").String(),
			Code:   e.Get("code").String(),
			Title:  e.Get("title").String(),
			Detail: e.Get("detail").String(),
		})
		return true
	})
	return errs
}

// Raw returns the original document bytes.
func (d *Document) Raw() []byte {
	return d.raw
}

// MarshalJSON returns the document unchanged.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.raw, nil
}

// ErrorMessage extracts a readable message from an error response body. The
// first error's detail is preferred, then its title; anything else yields
// apierror.UnknownErrorMessage.
func ErrorMessage(body []byte) string {
	doc, err := Parse(body)
	if err != nil {
		return apierror.UnknownErrorMessage
	}

	errs := doc.Errors()
	if len(errs) == 0 {
		return apierror.UnknownErrorMessage
	}

	if errs[0].Detail != "" {
		return errs[0].Detail
	}
	if errs[0].Title != "" {
		return errs[0].Title
	}

	return apierror.UnknownErrorMessage
}
