// Package viewer drives the PDF navigation side of citation clicks: it owns
// a single loaded document resource and computes the vertical scroll target
// for a lettered page section.
package viewer

import (
	"context"
	"fmt"
	"sync"
)

// State of the navigation controller
type State string

const (
	StateClosed  State = "closed"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Target identifies where the viewer should be: which stored file, which
// 1-based page, and which lettered section of that page.
type Target struct {
	Path            string `json:"path"`
	Page            int    `json:"page"`
	SectionLetter   string `json:"section_letter"`
	SectionsPerPage int    `json:"sections_per_page"`
}

// Document is a loaded PDF resource. Implementations must release all
// underlying resources in Close, which the controller calls on every
// transition that discards the document.
type Document interface {
	PageCount() int
	// PageHeight returns the page's intrinsic height at unit scale
	PageHeight(page int) (float64, error)
	Close() error
}

// Opener loads a stored file into a Document
type Opener interface {
	Open(ctx context.Context, path string) (Document, error)
}

// Status is a snapshot of the controller for clients
type Status struct {
	State      State   `json:"state"`
	Target     Target  `json:"target"`
	TotalPages int     `json:"total_pages,omitempty"`
	// ScrollY is the distance from the page's bottom-left origin that must
	// align with the viewport's top edge, in PDF points at unit scale
	ScrollY float64 `json:"scroll_y,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Controller is the navigation state machine. It exclusively owns the loaded
// document handle: the previous document is always released before a new one
// is loaded, and Close releases everything synchronously.
type Controller struct {
	mu      sync.Mutex
	opener  Opener
	state   State
	target  Target
	doc     Document
	scrollY float64
	errMsg  string
}

func NewController(opener Opener) *Controller {
	return &Controller{opener: opener, state: StateClosed}
}

// Open loads the target file and scrolls to the requested section. Any
// previously loaded document is released first, under every exit path.
func (c *Controller) Open(ctx context.Context, t Target) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	c.state = StateLoading
	c.target = t
	c.errMsg = ""
	c.scrollY = 0

	doc, err := c.opener.Open(ctx, t.Path)
	if err != nil {
		// Load failure leaves no document allocated
		c.state = StateError
		c.errMsg = fmt.Sprintf("failed to load %s: %v", t.Path, err)
		return c.statusLocked()
	}
	c.doc = doc

	c.computeScrollLocked()
	return c.statusLocked()
}

// Navigate moves to a new target. A different file path reloads the viewer;
// a page/section change on the already-loaded file only recomputes the
// scroll target.
func (c *Controller) Navigate(ctx context.Context, t Target) Status {
	c.mu.Lock()
	if c.doc == nil || c.target.Path != t.Path {
		c.mu.Unlock()
		return c.Open(ctx, t)
	}

	defer c.mu.Unlock()
	c.target = t
	c.errMsg = ""
	c.computeScrollLocked()
	return c.statusLocked()
}

// Close releases the viewer and document resources synchronously
func (c *Controller) Close() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()
	c.state = StateClosed
	c.target = Target{}
	c.errMsg = ""
	c.scrollY = 0
	return c.statusLocked()
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// computeScrollLocked validates the page and derives the scroll offset for
// the section band. The bands evenly divide the page into sectionsPerPage
// equal heights, lettered top to bottom; the offset is measured from the
// page's bottom-left origin so that the band's top edge meets the viewport
// top. An out-of-range section letter scrolls to the top of the page.
func (c *Controller) computeScrollLocked() {
	total := c.doc.PageCount()
	if c.target.Page < 1 || c.target.Page > total {
		c.state = StateError
		c.errMsg = fmt.Sprintf("cannot scroll to page %d: document has %d pages", c.target.Page, total)
		return
	}

	height, err := c.doc.PageHeight(c.target.Page)
	if err != nil {
		c.state = StateError
		c.errMsg = fmt.Sprintf("failed to read page %d: %v", c.target.Page, err)
		return
	}

	idx := sectionIndex(c.target.SectionLetter)
	if idx < 0 || c.target.SectionsPerPage < 1 || idx >= c.target.SectionsPerPage {
		c.scrollY = height
	} else {
		c.scrollY = height * (1 - float64(idx)/float64(c.target.SectionsPerPage))
	}
	c.state = StateReady
}

// releaseLocked tears down the current document handle, if any
func (c *Controller) releaseLocked() {
	if c.doc != nil {
		c.doc.Close()
		c.doc = nil
	}
}

func (c *Controller) statusLocked() Status {
	s := Status{
		State:   c.state,
		Target:  c.target,
		ScrollY: c.scrollY,
		Error:   c.errMsg,
	}
	if c.doc != nil {
		s.TotalPages = c.doc.PageCount()
	}
	return s
}

// sectionIndex maps a section letter to its 0-based band index; anything
// but a single uppercase letter maps to -1
func sectionIndex(letter string) int {
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return -1
	}
	return int(letter[0] - 'A')
}
