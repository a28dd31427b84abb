package endpoint

import (
	"net/http"

	"github.com/mnehpets/onerpc/codec"
)

// PayloadRenderer encodes Value with Codec and writes it with the codec's
// content type. Encoding happens before the status is written, so an encoding
// failure can still be reported as a 500.
type PayloadRenderer struct {
	Status int
	Codec  codec.Codec
	Value  any
}

func (pr *PayloadRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	c := pr.Codec
	if c == nil {
		c = codec.JSON
	}
	data, err := c.Encode(pr.Value)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", c.ContentType())
	status := pr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// StringRenderer writes a string as the response body with an optional
// status code and content type.
//
// When ContentType is empty, StringRenderer defaults to
// "text/plain; charset=utf-8".
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

// setContentType sets Content-Type unless an outer renderer already did.
func setContentType(w http.ResponseWriter, contentType string) {
	if w.Header().Get("Content-Type") == "" {
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
	}
}

func (tr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	setContentType(w, tr.ContentType)
	status := tr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if tr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(tr.Body))
	return err
}

// PlainRenderer is a StringRenderer that always uses a plain-text content type.
type PlainRenderer struct {
	StringRenderer
}

func (pr *PlainRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	pr.StringRenderer.ContentType = "text/plain; charset=utf-8"
	return pr.StringRenderer.Render(w, r)
}

// NoContentRenderer writes a response with no body. Status defaults to
// http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}
