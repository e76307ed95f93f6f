// ABOUTME: Region stack recording which semantic part of the feed document is open
// ABOUTME: Disambiguates same-named elements (feed link vs entry link, feed title vs entry title)

package extract

// Region is a semantic area of the feed document.
type Region int

const (
	MetaData Region = iota
	Entry
	Title
	Published
	Author
	Content
	ID
)

var regionNames = [...]string{
	MetaData:  "metadata",
	Entry:     "entry",
	Title:     "title",
	Published: "published",
	Author:    "author",
	Content:   "content",
	ID:        "id",
}

func (r Region) String() string {
	if int(r) < len(regionNames) {
		return regionNames[r]
	}
	return "unknown"
}

// Stack is a pushdown of open regions. It is seeded with MetaData and is
// never empty while a document is being traversed.
type Stack struct {
	regions []Region
}

// NewStack returns a stack holding only MetaData.
func NewStack() *Stack {
	return &Stack{regions: []Region{MetaData}}
}

// Push opens a region.
func (s *Stack) Push(r Region) {
	s.regions = append(s.regions, r)
}

// Pop closes the innermost region. Popping the MetaData seed is a contract
// violation: open and close tags are balanced by the tokenizer.
func (s *Stack) Pop() Region {
	if len(s.regions) <= 1 {
		panic("extract: pop of the document region")
	}
	top := s.regions[len(s.regions)-1]
	s.regions = s.regions[:len(s.regions)-1]
	return top
}

// CurrentIs reports whether r is the innermost open region.
func (s *Stack) CurrentIs(r Region) bool {
	return s.regions[len(s.regions)-1] == r
}

// Depth returns the number of open regions, including MetaData.
func (s *Stack) Depth() int {
	return len(s.regions)
}
