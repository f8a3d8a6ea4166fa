package extractor

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// decodeXMLFields flattens the leaf elements of an XML document into record
// fields. Nested element names are joined with dots below the root; repeated
// names keep the first occurrence so field order stays stable.
func decodeXMLFields(record *Record, data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var stack []string
	var text strings.Builder

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch t := token.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			value := strings.TrimSpace(text.String())
			if value != "" {
				name := fieldName(stack)
				if _, exists := record.Get(name); !exists {
					record.Set(name, value)
				}
			}
			text.Reset()
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	return nil
}

// fieldName drops the document root from the path: <record><creditline> maps
// to "creditline", deeper nesting to "parent.child".
func fieldName(stack []string) string {
	if len(stack) > 1 {
		return strings.Join(stack[1:], ".")
	}
	return strings.Join(stack, ".")
}
