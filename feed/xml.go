package feed

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// DecodeXML reads an XML document into a Value tree. The root element is an
// object keyed by its name; every nested element is collected into an array
// under its parent, so repeated and single children look the same.
func DecodeXML(r io.Reader) (Value, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return Value{}, errors.New("no root element")
		}
		if err != nil {
			return Value{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			root, err := decodeElement(dec, start)
			if err != nil {
				return Value{}, err
			}
			return Object(map[string]Value{start.Name.Local: root}), nil
		}
	}
}

func decodeElement(dec *xml.Decoder, start xml.StartElement) (Value, error) {
	fields := make(map[string]Value)
	var text strings.Builder
	children := false

	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeElement(dec, t)
			if err != nil {
				return Value{}, err
			}
			list := fields[t.Name.Local]
			list.Kind = KindArray
			list.Items = append(list.Items, child)
			fields[t.Name.Local] = list
			children = true

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			body := strings.TrimSpace(text.String())
			attrs := elementAttrs(start)
			if !children && len(attrs) == 0 {
				return Scalar(body), nil
			}
			if len(attrs) > 0 {
				fields["$"] = Object(attrs)
			}
			if body != "" {
				fields["_"] = Scalar(body)
			}
			return Object(fields), nil
		}
	}
}

func elementAttrs(start xml.StartElement) map[string]Value {
	var attrs map[string]Value
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]Value, len(start.Attr))
		}
		attrs[a.Name.Local] = Scalar(a.Value)
	}
	return attrs
}
