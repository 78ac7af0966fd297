package match

import (
	"fmt"
	"slices"
	"strings"

	"github.com/oggyb/peer-match/internal/catalog"
)

const (
	minCategories = 1
	maxCategories = 3
)

// Bucket is one (difficulty, topic) queue.
type Bucket struct {
	Difficulty string
	Topic      string
}

func (b Bucket) Key() string { return bucketKey(b.Difficulty, b.Topic) }

// Normalize validates c against the canonical lists and returns the cleaned
// criteria (duplicate topics dropped) together with every bucket it occupies.
// Difficulty and each submitted topic count as one category, duplicates
// included; the total must be within [1,3]. Names are matched exactly.
func Normalize(c Criteria, lists catalog.Lists) (Criteria, []Bucket, error) {
	total := len(c.Topics)
	if c.Difficulty != "" {
		total++
	}
	if total < minCategories || total > maxCategories {
		return Criteria{}, nil, fmt.Errorf("%w: select between %d and %d categories in total, got %d",
			ErrValidation, minCategories, maxCategories, total)
	}

	c = Criteria{Difficulty: c.Difficulty, Topics: dedupe(c.Topics)}

	if c.Difficulty != "" && !lists.HasDifficulty(c.Difficulty) {
		return Criteria{}, nil, fmt.Errorf("%w: invalid difficulty: %s", ErrValidation, c.Difficulty)
	}

	var invalid []string
	for _, t := range c.Topics {
		if !lists.HasTopic(t) {
			invalid = append(invalid, t)
		}
	}
	if len(invalid) > 0 {
		return Criteria{}, nil, fmt.Errorf("%w: invalid topics: %s", ErrValidation, strings.Join(invalid, ", "))
	}

	return c, Expand(c, lists), nil
}

// Expand builds the difficulty × topic cross product without validating.
// Unset difficulty expands to every difficulty, no topics to every topic.
// Order is difficulty-major, following the order of the inputs.
func Expand(c Criteria, lists catalog.Lists) []Bucket {
	diffs := lists.Difficulties
	if c.Difficulty != "" {
		diffs = []string{c.Difficulty}
	}
	topics := lists.Topics
	if len(c.Topics) > 0 {
		topics = c.Topics
	}

	out := make([]Bucket, 0, len(diffs)*len(topics))
	for _, d := range diffs {
		for _, t := range topics {
			out = append(out, Bucket{Difficulty: d, Topic: t})
		}
	}
	return out
}

// RetryMode selects how Retry rebuilds a request.
type RetryMode string

const (
	RetrySame    RetryMode = "same"
	RetryBroaden RetryMode = "broaden"
)

// Broaden relaxes c by one step: the difficulty moves to the easier
// neighbour, or the harder one when it is already the easiest. An unset
// difficulty stays unset and topics are never touched.
func Broaden(c Criteria, lists catalog.Lists) Criteria {
	out := Criteria{Difficulty: c.Difficulty, Topics: slices.Clone(c.Topics)}
	if c.Difficulty == "" {
		return out
	}

	switch idx := slices.Index(lists.Difficulties, c.Difficulty); {
	case idx > 0:
		out.Difficulty = lists.Difficulties[idx-1]
	case idx == 0 && len(lists.Difficulties) > 1:
		out.Difficulty = lists.Difficulties[1]
	}
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
