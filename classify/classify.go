/*
Package classify turns free-form chat text into attendance actions.

PURPOSE:
  Users type loose phrases ("我到岗啦", "wc 大", "1") rather than commands.
  This package normalizes the text and matches it against four configurable
  keyword sets: check-in, check-out, leave-start (with per-keyword allotted
  minutes), and leave-end.

MATCHING RULES:
  - Normalization strips all whitespace (including the ideographic space
    U+3000) and lowercases.
  - Check-in and check-out match exactly or by containment, so "我到岗啦"
    still checks in.
  - Return words match exactly only: "1" must be the whole message.
  - Report keywords try exact matches first, then containment, always
    longest keyword first so "wc大" wins over "大".

SEE ALSO:
  - config: Supplies the keyword→minutes mapping
  - attendance: Consumes the classified action
*/
package classify

import (
	"sort"
	"strings"
	"unicode"
)

// Action is the category a message was classified into.
type Action int

const (
	ActionNone Action = iota
	ActionCheckIn
	ActionCheckOut
	ActionLeaveStart
	ActionLeaveEnd
)

func (a Action) String() string {
	switch a {
	case ActionCheckIn:
		return "check_in"
	case ActionCheckOut:
		return "check_out"
	case ActionLeaveStart:
		return "leave_start"
	case ActionLeaveEnd:
		return "leave_end"
	default:
		return "none"
	}
}

// Match is the result of classifying one message. Keyword and Minutes are
// set only for ActionLeaveStart.
type Match struct {
	Action  Action
	Keyword string
	Minutes int
}

// Classifier matches normalized text against the configured keyword sets.
type Classifier struct {
	checkInWords  []string
	checkOutWords []string
	returnWords   map[string]bool
	reportKeys    []string // normalized, longest first
	minutes       map[string]int
	display       map[string]string // normalized keyword -> original form
}

// New builds a classifier. reportMinutes maps leave keywords to their
// allotted minutes; the other three sets are plain word lists.
func New(checkIn, checkOut, returns []string, reportMinutes map[string]int) *Classifier {
	c := &Classifier{
		returnWords: make(map[string]bool, len(returns)),
		minutes:     make(map[string]int, len(reportMinutes)),
		display:     make(map[string]string, len(reportMinutes)),
	}
	for _, w := range checkIn {
		c.checkInWords = append(c.checkInWords, Normalize(w))
	}
	for _, w := range checkOut {
		c.checkOutWords = append(c.checkOutWords, Normalize(w))
	}
	for _, w := range returns {
		c.returnWords[Normalize(w)] = true
	}
	for k, m := range reportMinutes {
		n := Normalize(k)
		c.reportKeys = append(c.reportKeys, n)
		c.minutes[n] = m
		c.display[n] = k
	}
	// Longest first so compound keywords beat their substrings.
	sort.Slice(c.reportKeys, func(i, j int) bool {
		if len(c.reportKeys[i]) != len(c.reportKeys[j]) {
			return len(c.reportKeys[i]) > len(c.reportKeys[j])
		}
		return c.reportKeys[i] < c.reportKeys[j]
	})
	return c
}

// Normalize strips all whitespace (half- and full-width) and lowercases.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '　' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Classify maps one message to an action. Precedence: check-in, check-out,
// return, then leave keywords.
func (c *Classifier) Classify(text string) Match {
	t := Normalize(text)
	if t == "" {
		return Match{Action: ActionNone}
	}

	for _, w := range c.checkInWords {
		if t == w || strings.Contains(t, w) {
			return Match{Action: ActionCheckIn}
		}
	}

	for _, w := range c.checkOutWords {
		if t == w || strings.Contains(t, w) {
			return Match{Action: ActionCheckOut}
		}
	}

	if c.returnWords[t] {
		return Match{Action: ActionLeaveEnd}
	}

	// Exact keyword match first, then containment, longest first.
	for _, k := range c.reportKeys {
		if t == k {
			return c.reportMatch(k)
		}
	}
	for _, k := range c.reportKeys {
		if strings.Contains(t, k) {
			return c.reportMatch(k)
		}
	}

	return Match{Action: ActionNone}
}

func (c *Classifier) reportMatch(normalized string) Match {
	return Match{
		Action:  ActionLeaveStart,
		Keyword: c.display[normalized],
		Minutes: c.minutes[normalized],
	}
}
