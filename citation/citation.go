// Package citation parses inline citation markers out of answer text and
// maps annotated-document page references back to the original source files.
//
// The marker grammar is a single regular-language rule:
//
//	[ref:P<digits>S<UppercaseLetter>]
//
// where the digits are a 1-based page number in the annotated (merged) PDF
// and the letter names one of its equal-height vertical bands, A from the
// top. Markers that cannot be mapped degrade to inert literal text.
package citation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Legalphoenix/tabular-review/model"
)

var markerPattern = regexp.MustCompile(`\[ref:P(\d+)S([A-Z])\]`)

// Segment is one span of rendered cell content: either plain text or an
// interactive citation reference.
type Segment struct {
	Text     string    `json:"text,omitempty"`
	Citation *Citation `json:"citation,omitempty"`
}

// Citation is a resolved, navigable reference into an original source file
type Citation struct {
	// Display is the short label shown in place of the marker, e.g. [P7SD]
	Display string `json:"display"`
	// Path and Page locate the target inside the original file
	Path string `json:"path"`
	Page int    `json:"page"`
	// SectionLetter plus SectionsPerPage drive the viewer's scroll target;
	// a letter outside the band range means "top of the page"
	SectionLetter   string `json:"section_letter"`
	SectionsPerPage int    `json:"sections_per_page"`
}

// BlockKind distinguishes paragraph content from bulleted-list content
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
)

// Block is one structural unit of rendered content. A paragraph block has a
// single line; a list block has one line per bullet item.
type Block struct {
	Kind  BlockKind   `json:"kind"`
	Lines [][]Segment `json:"lines"`
}

var bulletPattern = regexp.MustCompile(`^([*\-•])\s*(.*)$`)

// Resolve scans text for citation markers left to right and returns the
// interleaved text spans and resolved citations. Without annotated details
// the whole text comes back as one plain span; markers whose page falls
// outside the manifest stay literal.
func Resolve(text string, details *model.AnnotatedDocumentDetails) []Segment {
	if text == "" {
		return nil
	}
	if details == nil || len(details.OriginalFilesManifest) == 0 {
		return []Segment{{Text: text}}
	}

	var segments []Segment
	last := 0
	for _, m := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if start > last {
			segments = append(segments, Segment{Text: text[last:start]})
		}

		page, _ := strconv.Atoi(text[m[2]:m[3]])
		letter := text[m[4]:m[5]]

		cit := resolveMarker(page, letter, details)
		if cit == nil {
			// Unmappable reference: keep the marker as literal text
			segments = append(segments, Segment{Text: text[start:end]})
		} else {
			segments = append(segments, Segment{Citation: cit})
		}
		last = end
	}
	if last < len(text) {
		segments = append(segments, Segment{Text: text[last:]})
	}
	return segments
}

// resolveMarker walks the manifest accumulating a page offset; the marker
// belongs to the first file whose page range covers it. Returns nil when no
// entry covers the page.
func resolveMarker(page int, letter string, details *model.AnnotatedDocumentDetails) *Citation {
	if page < 1 {
		return nil
	}
	offset := 0
	for _, f := range details.OriginalFilesManifest {
		if page <= offset+f.PageCount {
			return &Citation{
				Display:         "[P" + strconv.Itoa(page) + "S" + letter + "]",
				Path:            f.Path,
				Page:            page - offset,
				SectionLetter:   letter,
				SectionsPerPage: details.SectionsPerPage,
			}
		}
		offset += f.PageCount
	}
	return nil
}

// Render resolves a whole cell's content into blocks. For bulleted-list
// columns the text is processed line by line so each item's citations
// resolve independently and list structure survives; every other format is
// treated as one paragraph block.
func Render(text string, details *model.AnnotatedDocumentDetails, format string) []Block {
	if text == "" {
		return nil
	}
	if format != model.FormatBulletedList {
		return []Block{{Kind: BlockParagraph, Lines: [][]Segment{Resolve(text, details)}}}
	}

	var blocks []Block
	var listItems [][]Segment

	flushList := func() {
		if len(listItems) > 0 {
			blocks = append(blocks, Block{Kind: BlockList, Lines: listItems})
			listItems = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if m := bulletPattern.FindStringSubmatch(trimmed); m != nil {
			listItems = append(listItems, Resolve(m[2], details))
			continue
		}
		flushList()
		if strings.TrimSpace(line) != "" {
			blocks = append(blocks, Block{Kind: BlockParagraph, Lines: [][]Segment{Resolve(line, details)}})
		}
	}
	flushList()
	return blocks
}
