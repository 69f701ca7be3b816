package index

// Posting records how often a word occurs in one property of one document.
type Posting struct {
	DocID     string `json:"id"`
	Frequency int    `json:"f"`
}

// PostingList holds the postings of one word, keyed by document ID.
type PostingList map[string]*Posting

// BoolSets holds the documents carrying each boolean value of a property.
type BoolSets struct {
	True  map[string]struct{}
	False map[string]struct{}
}

func newBoolSets() *BoolSets {
	return &BoolSets{True: make(map[string]struct{}), False: make(map[string]struct{})}
}

func (b *BoolSets) set(v bool) map[string]struct{} {
	if v {
		return b.True
	}
	return b.False
}
