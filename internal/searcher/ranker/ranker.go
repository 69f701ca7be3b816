// Package ranker scores matched documents with Okapi BM25 and orders them.
package ranker

import (
	"math"
)

const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	DocID string  `json:"id"`
	Score float64 `json:"score"`
}

// Params are the BM25 constants. The zero value uses k1=1.2 and b=0.75.
type Params struct {
	K1 float64
	B  float64
}

func (p Params) withDefaults() Params {
	if p.K1 == 0 {
		p.K1 = k1
	}
	if p.B == 0 {
		p.B = b
	}
	return p
}

// Match describes one occurrence of a matched word in one property of one
// document.
type Match struct {
	TermFrequency  int
	FieldLength    int
	AvgFieldLength float64
	DocsWithTerm   int
	TotalDocs      int
	Boost          float64
}

// BM25 scores a single match.
func BM25(m Match, p Params) float64 {
	p = p.withDefaults()
	idf := computeIDF(int64(m.TotalDocs), int64(m.DocsWithTerm))
	tfNorm := computeTFNorm(float64(m.TermFrequency), float64(m.FieldLength), m.AvgFieldLength, p)
	boost := m.Boost
	if boost == 0 {
		boost = 1
	}
	return idf * tfNorm * boost
}

// Round trims a score to four decimals so that float noise does not break
// ties between otherwise equal matches.
func Round(score float64) float64 {
	return math.Round(score*10000) / 10000
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64, p Params) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + p.K1*(1-p.B+p.B*lengthRatio)
	return (termFreq * (p.K1 + 1)) / denominator
}
