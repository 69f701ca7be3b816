package index

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/avl"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/radix"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Data is the serializable form of an Index.
type Data struct {
	Types        map[string]schema.Type          `json:"types"`
	Radix        map[string][]radix.Entry        `json:"radix"`
	Numbers      map[string][]avl.Entry          `json:"numbers"`
	Bools        map[string]BoolData             `json:"bools"`
	Frequencies  map[string]map[string][]Posting `json:"frequencies"`
	FieldLengths map[string]map[string]int       `json:"fieldLengths"`
	Seq          map[string]uint64               `json:"seq"`
	NextSeq      uint64                          `json:"nextSeq"`
}

type BoolData struct {
	True  []string `json:"true"`
	False []string `json:"false"`
}

func (x *Index) Save() Data {
	d := Data{
		Types:        make(map[string]schema.Type, len(x.types)),
		Radix:        make(map[string][]radix.Entry, len(x.radix)),
		Numbers:      make(map[string][]avl.Entry, len(x.numbers)),
		Bools:        make(map[string]BoolData, len(x.bools)),
		Frequencies:  make(map[string]map[string][]Posting, len(x.postings)),
		FieldLengths: make(map[string]map[string]int, len(x.fieldLengths)),
		Seq:          make(map[string]uint64, len(x.seq)),
		NextSeq:      x.nextSeq,
	}
	for p, t := range x.types {
		d.Types[p] = t
	}
	for p, tree := range x.radix {
		d.Radix[p] = tree.Entries()
	}
	for p, tree := range x.numbers {
		d.Numbers[p] = tree.Entries()
	}
	for p, b := range x.bools {
		d.Bools[p] = BoolData{True: sortedKeys(b.True), False: sortedKeys(b.False)}
	}
	for p, words := range x.postings {
		out := make(map[string][]Posting, len(words))
		for word, list := range words {
			ps := make([]Posting, 0, len(list))
			for _, posting := range list {
				ps = append(ps, *posting)
			}
			sort.Slice(ps, func(i, j int) bool { return ps[i].DocID < ps[j].DocID })
			out[word] = ps
		}
		d.Frequencies[p] = out
	}
	for p, lengths := range x.fieldLengths {
		cp := make(map[string]int, len(lengths))
		for id, n := range lengths {
			cp[id] = n
		}
		d.FieldLengths[p] = cp
	}
	for id, s := range x.seq {
		d.Seq[id] = s
	}
	return d
}

// Load rebuilds an Index from Save output.
func Load(d Data) (*Index, error) {
	x := empty()
	for p, t := range d.Types {
		if !t.Valid() {
			return nil, apperrors.Newf(apperrors.ErrInvalidSnapshot, http.StatusBadRequest, "property %q has type %q", p, t)
		}
		x.declare(p, t)
	}
	x.finish()

	for p, entries := range d.Radix {
		if _, ok := x.radix[p]; !ok {
			return nil, fmt.Errorf("radix data for %q: %w", p, apperrors.ErrInvalidSnapshot)
		}
		x.radix[p] = radix.FromEntries(entries)
	}
	for p, entries := range d.Numbers {
		if _, ok := x.numbers[p]; !ok {
			return nil, fmt.Errorf("number data for %q: %w", p, apperrors.ErrInvalidSnapshot)
		}
		x.numbers[p] = avl.FromEntries(entries)
	}
	for p, b := range d.Bools {
		sets, ok := x.bools[p]
		if !ok {
			return nil, fmt.Errorf("boolean data for %q: %w", p, apperrors.ErrInvalidSnapshot)
		}
		for _, id := range b.True {
			sets.True[id] = struct{}{}
		}
		for _, id := range b.False {
			sets.False[id] = struct{}{}
		}
	}
	for p, words := range d.Frequencies {
		dst, ok := x.postings[p]
		if !ok {
			return nil, fmt.Errorf("term data for %q: %w", p, apperrors.ErrInvalidSnapshot)
		}
		for word, ps := range words {
			list := make(PostingList, len(ps))
			for _, posting := range ps {
				posting := posting
				list[posting.DocID] = &posting
			}
			dst[word] = list
		}
	}
	for p, lengths := range d.FieldLengths {
		dst, ok := x.fieldLengths[p]
		if !ok {
			return nil, fmt.Errorf("length data for %q: %w", p, apperrors.ErrInvalidSnapshot)
		}
		for id, n := range lengths {
			dst[id] = n
			x.totalLengths[p] += n
		}
	}
	for id, s := range d.Seq {
		x.seq[id] = s
	}
	x.nextSeq = d.NextSeq
	return x, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
