package feed

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Document is a decoded feed: one Value per property entry.
type Document struct {
	Entries []Value
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode parses a feed body. XML is detected by content type or a leading
// '<'; anything else is read as JSON in the same tree shape.
func Decode(body []byte, contentType string) (*Document, error) {
	body = bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(body) == 0 {
		return nil, &ParseError{Reason: "empty body"}
	}

	var (
		root Value
		err  error
	)
	if body[0] == '<' || strings.Contains(contentType, "xml") {
		root, err = DecodeXML(bytes.NewReader(body))
	} else {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var raw any
		err = dec.Decode(&raw)
		root = FromAny(raw)
	}
	if err != nil {
		return nil, &ParseError{Reason: "decode body", Err: err}
	}

	return documentFromRoot(root)
}

func documentFromRoot(root Value) (*Document, error) {
	list, ok := root.Field("list")
	if !ok {
		return nil, &ParseError{Reason: "missing list element"}
	}
	props, ok := list.Field("property")
	if !ok {
		return nil, &ParseError{Reason: "missing list.property array"}
	}
	if props.Kind != KindArray {
		return nil, &ParseError{Reason: "list.property is not an array"}
	}
	return &Document{Entries: props.Items}, nil
}
