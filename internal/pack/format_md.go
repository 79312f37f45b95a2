package pack

import (
	"fmt"
	"strings"
)

// FormatMarkdown renders doc with headings in the same section order
// as FormatXML/FormatJSON, omitting empty sections.
func FormatMarkdown(doc Document) string {
	var b strings.Builder

	b.WriteString("# Context Pack\n\n")
	b.WriteString("## Project State\n\n")
	b.WriteString(doc.ProjectStateSummary)
	b.WriteString("\n\n")

	writeStringList(&b, "Decisions", doc.Decisions)
	writeStringList(&b, "Constraints", doc.Constraints)
	writeItemList(&b, "Active Tasks", doc.ActiveTasks)
	writeItemList(&b, "Plans", doc.Plans)
	writeItemList(&b, "Recent Context", doc.RecentContext)

	b.WriteString("## Instructions\n\n")
	b.WriteString(doc.Instructions)
	b.WriteString("\n")

	return b.String()
}

func writeStringList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func writeItemList(b *strings.Builder, heading string, items []Item) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- [%s] %s\n", it.ID, it.Text)
	}
	b.WriteString("\n")
}
