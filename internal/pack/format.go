package pack

import "fmt"

// Render dispatches doc to the formatter named by format.
func Render(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatXML:
		return FormatXML(doc)
	case FormatJSON:
		return FormatJSON(doc)
	case FormatMarkdown:
		return []byte(FormatMarkdown(doc)), nil
	default:
		return nil, fmt.Errorf("pack: unknown format %q", format)
	}
}
