package pack

import "encoding/xml"

// xmlDocument mirrors Document with the stable, documented child
// element order required by §4.8 step 5. Optional sections are
// pointers so an empty section is omitted from the output entirely
// rather than rendered as an empty tag.
type xmlDocument struct {
	XMLName       xml.Name        `xml:"context-pack"`
	ProjectState  xmlProjectState `xml:"project-state"`
	Decisions     *xmlStrings     `xml:"decisions,omitempty"`
	Constraints   *xmlStrings     `xml:"constraints,omitempty"`
	ActiveTasks   *xmlItems       `xml:"active-tasks,omitempty"`
	Plans         *xmlItems       `xml:"plans,omitempty"`
	RecentContext *xmlItems       `xml:"recent-context,omitempty"`
	Instructions  string          `xml:"instructions"`
}

type xmlProjectState struct {
	Summary string `xml:"summary"`
}

type xmlStrings struct {
	Items []string `xml:"item"`
}

type xmlItems struct {
	Items []Item `xml:"item"`
}

// FormatXML renders doc as the <context-pack> document described in
// §4.8.
func FormatXML(doc Document) ([]byte, error) {
	x := xmlDocument{
		ProjectState: xmlProjectState{Summary: doc.ProjectStateSummary},
		Instructions: doc.Instructions,
	}
	if len(doc.Decisions) > 0 {
		x.Decisions = &xmlStrings{Items: doc.Decisions}
	}
	if len(doc.Constraints) > 0 {
		x.Constraints = &xmlStrings{Items: doc.Constraints}
	}
	if len(doc.ActiveTasks) > 0 {
		x.ActiveTasks = &xmlItems{Items: doc.ActiveTasks}
	}
	if len(doc.Plans) > 0 {
		x.Plans = &xmlItems{Items: doc.Plans}
	}
	if len(doc.RecentContext) > 0 {
		x.RecentContext = &xmlItems{Items: doc.RecentContext}
	}

	out, err := xml.MarshalIndent(x, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
