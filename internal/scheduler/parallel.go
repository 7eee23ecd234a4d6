package scheduler

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/noah-isme/course-timetable-api/internal/models"
)

// ParallelThreshold is the minimum phrase overlap for two titles to count as the same content.
const ParallelThreshold = 0.6

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true, "to": true,
	"for": true, "with": true, "on": true, "at": true, "by": true, "from": true,
}

var romanLevels = map[string]int{
	"i": 1, "ii": 2, "iii": 3, "iv": 4, "v": 5,
	"vi": 6, "vii": 7, "viii": 8, "ix": 9, "x": 10,
}

// ParallelPair is a suggested parallel link between two subjects.
type ParallelPair struct {
	SubjectA string  `json:"subject_a"`
	SubjectB string  `json:"subject_b"`
	Overlap  float64 `json:"overlap"`
}

// IsParallelTitle reports whether two subject titles describe the same content.
func IsParallelTitle(a, b string) bool {
	return TitleOverlap(a, b) >= ParallelThreshold
}

// TitleOverlap is |A∩B| / min(|A|,|B|) over the key phrases of both titles. Titles carrying
// different levels ("Calculus I" and "Calculus 2") never overlap; a title without a level is
// compared on its words alone.
func TitleOverlap(a, b string) float64 {
	wa, la := normalizeTitle(a)
	wb, lb := normalizeTitle(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	if la != 0 && lb != 0 && la != lb {
		return 0
	}
	if strings.Join(wa, " ") == strings.Join(wb, " ") {
		return 1
	}
	pa, pb := keyPhrases(wa), keyPhrases(wb)
	if len(pa) == 0 || len(pb) == 0 {
		return 0
	}
	var shared int
	for phrase := range pa {
		if pb[phrase] {
			shared++
		}
	}
	smaller := len(pa)
	if len(pb) < smaller {
		smaller = len(pb)
	}
	return float64(shared) / float64(smaller)
}

// normalizeTitle lower-cases and strips punctuation and stop words. Roman and arabic level
// markers are removed from the words and returned as the title's level (0 when absent).
func normalizeTitle(title string) ([]string, int) {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	var level int
	for _, w := range fields {
		if stopWords[w] {
			continue
		}
		if n, ok := romanLevels[w]; ok {
			level = n
			continue
		}
		if isNumber(w) {
			level, _ = strconv.Atoi(w)
			continue
		}
		out = append(out, w)
	}
	return out, level
}

// keyPhrases returns word bigrams plus every word of five letters or more.
func keyPhrases(words []string) map[string]bool {
	phrases := make(map[string]bool)
	for i, w := range words {
		if len(w) >= 5 {
			phrases[w] = true
		}
		if i+1 < len(words) {
			phrases[w+" "+words[i+1]] = true
		}
	}
	if len(phrases) == 0 && len(words) > 0 {
		phrases[words[0]] = true
	}
	return phrases
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w != ""
}

// SuggestParallel compares the titles of distinct subjects and returns the pairs that look
// parallel but are not linked yet, highest overlap first.
func SuggestParallel(blocks []models.SubjectBlock) []ParallelPair {
	titles := make(map[string]string)
	linked := make(map[[2]string]bool)
	var subjects []string
	for _, b := range blocks {
		if _, ok := titles[b.SubjectID]; !ok {
			titles[b.SubjectID] = b.Title
			subjects = append(subjects, b.SubjectID)
		}
		for _, other := range b.ParallelSubjectIDs {
			linked[pairKey(b.SubjectID, other)] = true
		}
	}
	sort.Strings(subjects)
	var pairs []ParallelPair
	for i := range subjects {
		for j := i + 1; j < len(subjects); j++ {
			a, b := subjects[i], subjects[j]
			if linked[pairKey(a, b)] {
				continue
			}
			if overlap := TitleOverlap(titles[a], titles[b]); overlap >= ParallelThreshold {
				pairs = append(pairs, ParallelPair{SubjectA: a, SubjectB: b, Overlap: overlap})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Overlap > pairs[j].Overlap
	})
	return pairs
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
