// Package engine applies add, remove and change requests to a story's event
// sequence.
//
// The Apply* functions are pure: they validate a request against an in-memory
// sequence and return a new sequence, leaving their input untouched. Engine
// wraps them with loading, the one-step undo snapshot and saving, so that a
// rejected request never reaches the store.
package engine

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/daviddao/storythreads/internal/timeline"
)

// AddRequest opens, develops and/or closes a thread.
//
// Descriptions lists the event texts in timeline order. For a thread that does
// not exist yet the thread id may lead the list; when one description fewer
// than positions is given, the id doubles as the opening description. A
// closing event may go without a description.
type AddRequest struct {
	Thread       string
	Descriptions []string
	Positions    []int
	Close        bool
}

// Selector picks a development either by position or by description.
type Selector struct {
	Position    int
	Description string
	ByPosition  bool
}

// ParseSelector treats tokens that parse as integers as positions.
func ParseSelector(s string) Selector {
	if p, err := strconv.Atoi(s); err == nil {
		return Selector{Position: p, ByPosition: true}
	}
	return Selector{Description: s}
}

func (s Selector) String() string {
	if s.ByPosition {
		return strconv.Itoa(s.Position)
	}
	return s.Description
}

// RemoveRequest removes a whole thread, its ending, and/or some developments.
type RemoveRequest struct {
	Thread       string
	Ending       bool
	Developments []Selector
}

// Edit carries one or two tokens: an integer is a new position, anything else
// a new description.
type Edit struct {
	Tokens []string
}

// DevelopmentEdit locates a development by Selector and edits it.
type DevelopmentEdit struct {
	Selector string
	Tokens   []string
}

// ChangeRequest moves or rewrites the opening, one development and/or the
// ending of a thread. Nil edits are left alone.
type ChangeRequest struct {
	Thread      string
	Opening     *Edit
	Development *DevelopmentEdit
	Ending      *Edit
}

// ApplyAdd validates req against seq and returns the sequence with the new
// entries inserted.
func ApplyAdd(seq timeline.Sequence, req AddRequest) (timeline.Sequence, error) {
	if req.Thread == "" || len(req.Descriptions) == 0 {
		return nil, errorf(MissingDescription, "you need to pass at least one event name to act as identifier for the story thread")
	}
	if len(req.Positions) == 0 {
		return nil, errorf(OrderingViolation, "you need to pass positions to add something")
	}
	for _, p := range req.Positions {
		if p < 0 {
			return nil, errorf(OrderingViolation, "position %d is negative", p)
		}
	}

	isNew := !seq.Has(req.Thread)
	m := len(req.Positions)
	last := req.Positions[m-1]

	for i := 1; i < m; i++ {
		if req.Positions[i] < req.Positions[i-1] {
			if isNew && req.Positions[i] < req.Positions[0] {
				return nil, errorf(OrderingViolation, "the story thread must open before it can develop or close")
			}
			return nil, errorf(OrderingViolation, "the events of the story thread must be given in timeline order")
		}
	}
	if req.Close {
		for _, p := range req.Positions[:m-1] {
			if p > last {
				return nil, errorf(OrderingViolation, "the story thread must close after it opens or develops")
			}
		}
	}

	names := req.Descriptions
	if names[0] != req.Thread {
		names = append([]string{req.Thread}, names...)
	}

	var candidates []string
	for _, d := range names[1:] {
		if d != "" {
			candidates = append(candidates, d)
		}
	}
	if !timeline.DescriptionsAreNew(seq, req.Thread, candidates) {
		return nil, errorf(DuplicateEvent, "the story thread %q already contains events with these descriptions", req.Thread)
	}

	events, err := resolveDescriptions(names, m, isNew, req.Close)
	if err != nil {
		return nil, err
	}

	closed := timeline.IsClosed(seq, req.Thread)
	if req.Close && closed {
		return nil, errorf(InvalidState, "cannot close the closed story thread %q", req.Thread)
	}
	if !isNew {
		if opening := seq.FirstIndex(req.Thread); req.Positions[0] <= opening {
			return nil, errorf(OrderingViolation, "the story thread %q opens at %d and cannot develop at or before it", req.Thread, opening)
		}
		if closed {
			if ending := seq.LastIndex(req.Thread); last > ending {
				return nil, errorf(OrderingViolation, "the story thread %q closes at %d and cannot develop after it", req.Thread, ending)
			}
		}
	}

	entries := make([]timeline.Entry, m)
	for i := range req.Positions {
		kind := timeline.Development
		switch {
		case i == 0 && isNew:
			kind = timeline.Opening
		case i == m-1 && req.Close:
			kind = timeline.Closing
		}
		var desc string
		if i < len(events) {
			desc = events[i]
		}
		if desc == "" && kind != timeline.Closing {
			return nil, errorf(MissingDescription, "every event except the closing of a story thread needs a description")
		}
		entries[i] = timeline.Entry{Thread: req.Thread, Kind: kind, Description: desc}
	}

	out := seq.Clone()
	for shift, e := range entries {
		out = timeline.InsertWithShift(out, req.Positions[shift]+shift, e)
	}
	return out, nil
}

// resolveDescriptions decides which names describe events. names[0] is always
// the thread id.
func resolveDescriptions(names []string, positions int, isNew, closing bool) ([]string, error) {
	n := len(names)
	if !isNew {
		events := names[1:]
		if len(events) == positions || (closing && len(events)+1 == positions) {
			return events, nil
		}
		if len(events) > positions {
			return nil, errorf(MissingDescription, "%d descriptions given for %d positions", len(events), positions)
		}
		return nil, errorf(MissingDescription, "missing description. Every event except the closing of a story thread needs a description")
	}
	switch {
	case n == positions+1:
		return names[1:], nil
	case n == positions:
		// The id doubles as the opening description.
		return names, nil
	case n+1 == positions && closing:
		return names, nil
	}
	return nil, errorf(MissingDescription, "missing description. Every event except the closing of a story thread needs a description")
}

// ApplyRemove validates req against seq and returns the shortened sequence.
// Development selectors that do not point at a development of the thread are
// skipped and reported as warnings.
func ApplyRemove(seq timeline.Sequence, req RemoveRequest) (timeline.Sequence, []string, error) {
	if !seq.Has(req.Thread) {
		return nil, nil, errorf(UnknownThread, "the story thread %q does not exist and cannot be removed", req.Thread)
	}
	if req.Ending && !timeline.IsClosed(seq, req.Thread) {
		return nil, nil, errorf(InvalidState, "the story thread %q is already open", req.Thread)
	}

	if !req.Ending && len(req.Developments) == 0 {
		out, _ := timeline.RemoveThread(seq.Clone(), req.Thread)
		return out, nil, nil
	}

	targets := make(map[int]bool)
	if req.Ending {
		targets[seq.LastIndex(req.Thread)] = true
	}

	var warnings []string
	developments := 0
	for _, sel := range req.Developments {
		if !sel.ByPosition {
			found := false
			for i, e := range seq {
				if e.Thread == req.Thread && e.Kind == timeline.Development && e.Description == sel.Description {
					found = true
					if !targets[i] {
						targets[i] = true
						developments++
					}
				}
			}
			if !found {
				warnings = append(warnings, fmt.Sprintf("Did not remove thread development %q as the thread has no development with that description.", sel.Description))
			}
			continue
		}

		i := sel.Position
		switch {
		case i < 0 || i >= len(seq):
			warnings = append(warnings, fmt.Sprintf("Did not remove thread development at index %d as there is no event at that index.", i))
		case seq[i].Thread != req.Thread:
			warnings = append(warnings, fmt.Sprintf("Did not remove thread development at index %d as it belongs to a different thread.", i))
		case seq[i].Kind != timeline.Development:
			warnings = append(warnings, fmt.Sprintf("Did not remove thread development at index %d as it is not a development.", i))
		case !targets[i]:
			targets[i] = true
			developments++
		}
	}
	if len(req.Developments) > 0 && developments == 0 {
		warnings = append(warnings, "There was nothing to remove.")
	}

	indices := make([]int, 0, len(targets))
	for i := range targets {
		indices = append(indices, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	out := seq.Clone()
	for _, i := range indices {
		out = timeline.RemoveAt(out, i)
	}
	return out, warnings, nil
}

type editValue struct {
	position    *int
	description *string
}

func parseEdit(event string, tokens []string) (editValue, error) {
	var v editValue
	if len(tokens) == 0 {
		return v, errorf(MalformedEdit, "nothing given to change the %s to", event)
	}
	for _, tok := range tokens {
		if p, err := strconv.Atoi(tok); err == nil {
			if v.position != nil {
				return v, errorf(MalformedEdit, "you can only change one index and description per event (the %s got two indices)", event)
			}
			v.position = &p
			continue
		}
		if v.description != nil {
			return v, errorf(MalformedEdit, "you can only change one index and description per event (the %s got two descriptions)", event)
		}
		desc := tok
		v.description = &desc
	}
	return v, nil
}

func (v editValue) apply(positions []int, descriptions []string, i int) {
	if v.position != nil {
		positions[i] = *v.position
	}
	if v.description != nil {
		descriptions[i] = *v.description
	}
}

// ApplyChange moves or rewrites events of a thread. It removes the thread and
// adds it back with the staged positions and descriptions, so the result
// passes the same validation as ApplyAdd.
func ApplyChange(seq timeline.Sequence, req ChangeRequest) (timeline.Sequence, error) {
	if req.Opening == nil && req.Development == nil && req.Ending == nil {
		return nil, errorf(MalformedEdit, "no thread event specified for change")
	}

	var opening, development, ending editValue
	var err error
	if req.Opening != nil {
		if opening, err = parseEdit("opening", req.Opening.Tokens); err != nil {
			return nil, err
		}
	}
	if req.Development != nil {
		if development, err = parseEdit("development", req.Development.Tokens); err != nil {
			return nil, err
		}
	}
	if req.Ending != nil {
		if ending, err = parseEdit("ending", req.Ending.Tokens); err != nil {
			return nil, err
		}
	}

	if !seq.Has(req.Thread) {
		return nil, errorf(UnknownThread, "the story thread %q does not exist and cannot be changed", req.Thread)
	}
	closed := timeline.IsClosed(seq, req.Thread)
	if req.Ending != nil && !closed {
		return nil, errorf(InvalidState, "the story thread %q is not closed. The ending cannot be changed", req.Thread)
	}

	original := seq.Positions(req.Thread)
	staged := make([]int, len(original))
	copy(staged, original)
	descriptions := make([]string, len(original))
	for j, p := range original {
		descriptions[j] = seq[p].Description
	}

	if req.Opening != nil {
		opening.apply(staged, descriptions, 0)
		for _, p := range staged[1:] {
			if staged[0] > p {
				return nil, errorf(OrderingViolation, "the story thread must open before it can develop or close")
			}
		}
	}
	if req.Development != nil {
		dev := -1
		for j, p := range original {
			e := seq[p]
			if e.Kind == timeline.Development && (strconv.Itoa(p) == req.Development.Selector || e.Description == req.Development.Selector) {
				dev = j
				break
			}
		}
		if dev < 0 {
			return nil, errorf(InvalidState, "the development %q does not match a known development of %q", req.Development.Selector, req.Thread)
		}
		development.apply(staged, descriptions, dev)
		if staged[0] > staged[dev] {
			return nil, errorf(OrderingViolation, "the story thread cannot develop before it opens")
		}
	}
	if req.Ending != nil {
		last := len(staged) - 1
		ending.apply(staged, descriptions, last)
		for _, p := range staged[:last] {
			if p > staged[last] {
				return nil, errorf(OrderingViolation, "the story thread must close after it opens or develops")
			}
		}
	}

	// Developments are ordered only by position; the opening stays first and
	// the ending last.
	order := make([]int, len(staged))
	for j := range order {
		order[j] = j
	}
	lo, hi := 1, len(order)
	if closed {
		hi--
	}
	if lo < hi {
		middle := order[lo:hi]
		sort.SliceStable(middle, func(a, b int) bool {
			return staged[middle[a]] < staged[middle[b]]
		})
	}

	// The k-th re-added event is inserted k slots further along, so its
	// batch position is the staged one minus k. Ties with an earlier event
	// land right after it.
	add := AddRequest{
		Thread:       req.Thread,
		Descriptions: []string{req.Thread},
		Positions:    make([]int, 0, len(order)),
		Close:        closed,
	}
	for k, j := range order {
		p := staged[j] - k
		if k > 0 {
			p = max(p, add.Positions[k-1])
		}
		add.Descriptions = append(add.Descriptions, descriptions[j])
		add.Positions = append(add.Positions, p)
	}

	removed, _, err := ApplyRemove(seq, RemoveRequest{Thread: req.Thread})
	if err != nil {
		return nil, err
	}
	return ApplyAdd(removed, add)
}
