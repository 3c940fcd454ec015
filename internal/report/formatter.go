package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"catchall/internal/capture"
	"catchall/internal/enrichment"
)

const (
	Title = "New Request"

	// Bodies longer than this are attached as a file instead of inlined.
	MaxInlineBody = 2000

	AttachmentName = "body.txt"

	DefaultColor = 0x03A9F4
)

// Section is one part of the report text. Block sections render their Text
// as a fenced, fixed-width block under a bold heading.
type Section struct {
	Heading string
	Text    string
	Block   bool
}

type Attachment struct {
	Name string
	Data []byte
}

// Report is the sink-agnostic description of one captured request.
type Report struct {
	RequestID  string
	Title      string
	Sections   []Section
	Content    string
	Attachment *Attachment
	Timestamp  time.Time
	Color      int
}

// Description renders every section into a single text body.
func (r *Report) Description() string {
	var b strings.Builder
	for i, s := range r.Sections {
		switch {
		case s.Block:
			fmt.Fprintf(&b, "**%s:**\n```\n%s```\n", s.Heading, s.Text)
		case s.Heading != "":
			fmt.Fprintf(&b, "%s: %s\n", s.Heading, s.Text)
		default:
			b.WriteString(s.Text + "\n")
		}
		// blank line between the request summary and the data blocks
		if !s.Block && i+1 < len(r.Sections) && r.Sections[i+1].Block {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Section returns the section with the given heading.
func (r *Report) Section(heading string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Heading == heading {
			return s, true
		}
	}
	return Section{}, false
}

// Formatter builds reports. Now is replaceable for tests.
type Formatter struct {
	Now func() time.Time
}

func NewFormatter() *Formatter {
	return &Formatter{Now: time.Now}
}

// Format never emits a section for empty data.
func (f *Formatter) Format(req *capture.Request, geo enrichment.GeoInfo) *Report {
	rep := &Report{
		RequestID: req.ID,
		Title:     Title,
		Color:     DefaultColor,
		Timestamp: f.Now().UTC(),
		Sections: []Section{
			{Text: fmt.Sprintf("`%s` `%s`", req.Method, req.URL)},
			{Heading: "From", Text: fmt.Sprintf("`%s`", req.Addr())},
		},
	}

	rep.addList("IP info", geo)
	rep.addList("Headers", req.Headers)
	rep.addList("Cookies", req.Cookies)
	rep.addList("Query", req.Query)

	switch {
	case len(req.Body) == 0:
	case len(req.Body) > MaxInlineBody:
		rep.Attachment = &Attachment{Name: AttachmentName, Data: req.Body}
	default:
		rep.Content = "```" + strings.ToValidUTF8(string(req.Body), "\uFFFD") + "```"
	}

	if req.Truncated {
		rep.Sections = append(rep.Sections, Section{
			Heading: "Body",
			Text:    fmt.Sprintf("truncated to the first %d bytes", len(req.Body)),
		})
	}

	return rep
}

func (r *Report) addList(heading string, values map[string]string) {
	if len(values) == 0 {
		return
	}
	r.Sections = append(r.Sections, Section{Heading: heading, Text: Listify(values), Block: true})
}

// Listify renders a mapping as "- key: value" lines sorted by key.
func Listify(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, values[k])
	}
	return b.String()
}
