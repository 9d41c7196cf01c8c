package quiz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/studyforge/api/internal/model"
)

// Planner constants
const (
	MinQuestionsPerQuiz = 5
	MaxQuestionsPerQuiz = 15
	MaxQuizzes          = 6

	// substantialConceptThreshold marks a section as content-rich.
	substantialConceptThreshold = 3

	// lowContentThreshold is the aggregate lesson count at or below which
	// everything fits in a single quiz.
	lowContentThreshold = 10

	// conceptsPerQuiz sizes the group count for moderate and high content.
	conceptsPerQuiz = 8
)

// sectionScore is the per-section content measure driving grouping.
type sectionScore struct {
	concepts    int
	entities    int
	quotes      int
	substantial bool
}

// Plan partitions ordered sections into ordered, contiguous quiz groups.
// Every section appears in exactly one group, in original order; group
// question estimates are clamped to [MinQuestionsPerQuiz,
// MaxQuestionsPerQuiz] and the group count never exceeds MaxQuizzes.
// An empty input yields no groups.
func Plan(sections []model.Section) []model.QuizGroup {
	if len(sections) == 0 {
		return nil
	}

	scores := make([]sectionScore, len(sections))
	for i, s := range sections {
		scores[i] = sectionScore{
			concepts:    len(s.Lessons),
			entities:    len(s.Entities),
			quotes:      len(s.Quotes),
			substantial: len(s.Lessons) >= substantialConceptThreshold,
		}
	}

	groupCount := decideGroupCount(scores)
	groups := partition(scores, groupCount)
	groups = mergeUnderfilled(scores, groups)

	out := make([]model.QuizGroup, 0, len(groups))
	for n, g := range groups {
		out = append(out, buildGroup(n+1, g, sections, scores))
	}
	return out
}

// decideGroupCount picks how many quizzes the content supports: one for
// low aggregate content, roughly one per conceptsPerQuiz lessons otherwise,
// nudged up when many sections are content-rich, capped at MaxQuizzes.
func decideGroupCount(scores []sectionScore) int {
	total := 0
	rich := 0
	for _, s := range scores {
		total += s.concepts
		if s.substantial {
			rich++
		}
	}

	if total <= lowContentThreshold {
		return 1
	}

	n := (total + conceptsPerQuiz - 1) / conceptsPerQuiz
	if rich/2 > n {
		n = rich / 2
	}
	if n > MaxQuizzes {
		n = MaxQuizzes
	}
	if n > len(scores) {
		n = len(scores)
	}
	if n < 1 {
		n = 1
	}
	return n
}

// partition splits section indices into count contiguous runs of roughly
// equal concept mass. Every run is non-empty.
func partition(scores []sectionScore, count int) [][]int {
	total := 0
	for _, s := range scores {
		total += s.concepts
	}

	groups := make([][]int, 0, count)
	var current []int
	accumulated := 0

	for i := range scores {
		current = append(current, i)
		accumulated += scores[i].concepts

		remainingSections := len(scores) - i - 1
		remainingGroups := count - len(groups) - 1

		// Close the run once it carries its share of the concept mass,
		// unless the tail could no longer fill the remaining groups.
		target := total * (len(groups) + 1) / count
		if remainingGroups > 0 && (accumulated >= target || remainingSections == remainingGroups) {
			groups = append(groups, current)
			current = nil
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// rawEstimate is the unclamped question estimate for a run of sections.
func rawEstimate(scores []sectionScore, indices []int) int {
	concepts, entities, quotes := 0, 0, 0
	for _, i := range indices {
		concepts += scores[i].concepts
		entities += scores[i].entities
		quotes += scores[i].quotes
	}
	return concepts + (entities+1)/2 + (quotes+1)/2
}

// mergeUnderfilled folds groups whose raw estimate cannot genuinely support
// the minimum question count into an adjacent group, instead of letting the
// clamp inflate them. Contiguity and order are preserved; merging stops when
// every remaining group holds at least the minimum or one group is left.
func mergeUnderfilled(scores []sectionScore, groups [][]int) [][]int {
	for len(groups) > 1 {
		idx := -1
		for i, g := range groups {
			if rawEstimate(scores, g) < MinQuestionsPerQuiz {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}

		target := mergeNeighbor(scores, groups, idx)
		lo, hi := target, idx
		if lo > hi {
			lo, hi = hi, lo
		}
		merged := append(append([]int{}, groups[lo]...), groups[hi]...)

		next := make([][]int, 0, len(groups)-1)
		next = append(next, groups[:lo]...)
		next = append(next, merged)
		next = append(next, groups[hi+1:]...)
		groups = next
	}
	return groups
}

// mergeNeighbor picks which adjacent group an underfilled group at idx
// should join: the only neighbor at the edges, otherwise the one that keeps
// the merged estimate within the maximum, breaking ties toward the smaller.
func mergeNeighbor(scores []sectionScore, groups [][]int, idx int) int {
	if idx == 0 {
		return 1
	}
	if idx == len(groups)-1 {
		return idx - 1
	}

	own := rawEstimate(scores, groups[idx])
	left := rawEstimate(scores, groups[idx-1])
	right := rawEstimate(scores, groups[idx+1])

	leftFits := own+left <= MaxQuestionsPerQuiz
	rightFits := own+right <= MaxQuestionsPerQuiz
	if leftFits != rightFits {
		if leftFits {
			return idx - 1
		}
		return idx + 1
	}
	if left <= right {
		return idx - 1
	}
	return idx + 1
}

func buildGroup(number int, indices []int, sections []model.Section, scores []sectionScore) model.QuizGroup {
	estimate := rawEstimate(scores, indices)
	if estimate < MinQuestionsPerQuiz {
		estimate = MinQuestionsPerQuiz
	}
	if estimate > MaxQuestionsPerQuiz {
		estimate = MaxQuestionsPerQuiz
	}

	concepts := 0
	duration := 0.0
	for _, i := range indices {
		concepts += scores[i].concepts
		duration += sectionDurationMinutes(sections[i])
	}

	return model.QuizGroup{
		QuizNumber:           number,
		SectionIndices:       append([]int{}, indices...),
		SectionRange:         rangeLabel(indices),
		EstimatedQuestions:   estimate,
		TotalConcepts:        concepts,
		TotalDurationMinutes: duration,
	}
}

// rangeLabel renders the human section range, 1-based.
func rangeLabel(indices []int) string {
	first := indices[0] + 1
	last := indices[len(indices)-1] + 1
	if first == last {
		return fmt.Sprintf("Section %d", first)
	}
	return fmt.Sprintf("Sections %d-%d", first, last)
}

// sectionDurationMinutes computes a section's length from its clock-string
// bounds. A malformed or inverted timestamp contributes zero rather than
// failing the plan.
func sectionDurationMinutes(s model.Section) float64 {
	start, ok := parseClock(s.StartTime)
	if !ok {
		return 0
	}
	end, ok := parseClock(s.EndTime)
	if !ok || end < start {
		return 0
	}
	return float64(end-start) / 60.0
}

// parseClock parses "MM:SS" or "HH:MM:SS" into seconds.
func parseClock(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}

	values := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, false
		}
		values[i] = v
	}

	if len(values) == 2 {
		return values[0]*60 + values[1], true
	}
	return values[0]*3600 + values[1]*60 + values[2], true
}
