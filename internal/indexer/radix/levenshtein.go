package radix

// Levenshtein returns the full edit distance between a and b, measured in
// runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cur[j] = editStep(prev, cur, ra[i-1], rb[j-1], j)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// BoundedLevenshtein reports whether the edit distance between a and b is at
// most tolerance. When it is, the exact distance is returned with true;
// otherwise it returns -1 and false. The computation stops as soon as every
// cell of a DP row exceeds tolerance, since row minima never decrease.
func BoundedLevenshtein(a, b string, tolerance int) (int, bool) {
	if tolerance < 0 {
		return -1, false
	}
	if a == b {
		return 0, true
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	// Shared suffixes and prefixes never contribute to the distance.
	for len(ra) > 0 && ra[len(ra)-1] == rb[len(rb)-1] {
		ra = ra[:len(ra)-1]
		rb = rb[:len(rb)-1]
	}
	for len(ra) > 0 && ra[0] == rb[0] {
		ra = ra[1:]
		rb = rb[1:]
	}

	if len(rb)-len(ra) > tolerance {
		return -1, false
	}
	if len(ra) == 0 {
		return len(rb), true
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cur[j] = editStep(prev, cur, ra[i-1], rb[j-1], j)
			if cur[j] < rowMin {
				rowMin = cur[j]
			}
		}
		if rowMin > tolerance {
			return -1, false
		}
		prev, cur = cur, prev
	}
	if d := prev[len(rb)]; d <= tolerance {
		return d, true
	}
	return -1, false
}

func editStep(prev, cur []int, ca, cb rune, j int) int {
	cost := 1
	if ca == cb {
		cost = 0
	}
	return min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
}
