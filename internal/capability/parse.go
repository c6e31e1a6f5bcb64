package capability

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var actionBlockPattern = regexp.MustCompile(`(?s):::action\s*(.*?)\s*:::`)

// ParsedReply is an agent reply split into visible text and requested actions.
type ParsedReply struct {
	Text        string
	Invocations []Invocation
	// Invalid holds the raw bodies of blocks that could not be decoded even after repair.
	Invalid []string
}

// ParseReply extracts `:::action {...} :::` blocks from an agent reply. Model output is often
// slightly malformed JSON (trailing commas, single quotes, missing braces), so each block is
// repaired before it is rejected.
func ParseReply(reply string) ParsedReply {
	var parsed ParsedReply

	for _, match := range actionBlockPattern.FindAllStringSubmatch(reply, -1) {
		body := match[1]
		inv, err := decodeInvocation(body)
		if err != nil {
			parsed.Invalid = append(parsed.Invalid, body)
			continue
		}
		parsed.Invocations = append(parsed.Invocations, inv)
	}

	parsed.Text = strings.TrimSpace(actionBlockPattern.ReplaceAllString(reply, ""))
	return parsed
}

func decodeInvocation(body string) (Invocation, error) {
	inv, err := unmarshalInvocation(body)
	if err == nil {
		return inv, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(body)
	if repairErr != nil {
		return Invocation{}, fmt.Errorf("repair action json: %w", repairErr)
	}
	return unmarshalInvocation(repaired)
}

func unmarshalInvocation(body string) (Invocation, error) {
	var inv Invocation
	if err := json.Unmarshal([]byte(body), &inv); err != nil {
		return Invocation{}, err
	}
	inv.Name = strings.TrimSpace(inv.Name)
	if inv.Name == "" {
		return Invocation{}, fmt.Errorf("action name missing")
	}
	return inv, nil
}

const actionOpener = ":::action"

// ReplyFilter removes action blocks from a reply while it streams. Text is released as soon
// as it can no longer become part of a block; the concatenation of everything Push and Flush
// return equals the untrimmed ParseReply text of the full reply.
type ReplyFilter struct {
	raw  string
	sent int
}

// Push adds the next delta and returns the newly visible text, possibly empty.
func (f *ReplyFilter) Push(delta string) string {
	f.raw += delta
	return f.release(f.raw[:f.safeEnd()])
}

// Flush returns whatever is still withheld. Unterminated blocks are not actions and are
// released as plain text.
func (f *ReplyFilter) Flush() string {
	return f.release(f.raw)
}

func (f *ReplyFilter) release(prefix string) string {
	visible := actionBlockPattern.ReplaceAllString(prefix, "")
	if len(visible) <= f.sent {
		return ""
	}
	out := visible[f.sent:]
	f.sent = len(visible)
	return out
}

// safeEnd is the length of the longest prefix of raw whose rendering cannot change when more
// text arrives: it stops before an unterminated block or a trailing partial opener.
func (f *ReplyFilter) safeEnd() int {
	lastEnd := 0
	if matches := actionBlockPattern.FindAllStringIndex(f.raw, -1); len(matches) > 0 {
		lastEnd = matches[len(matches)-1][1]
	}

	tail := f.raw[lastEnd:]
	if i := strings.Index(tail, actionOpener); i >= 0 {
		return lastEnd + i
	}
	for k := min(len(actionOpener)-1, len(tail)); k > 0; k-- {
		if strings.HasSuffix(tail, actionOpener[:k]) {
			return len(f.raw) - k
		}
	}
	return len(f.raw)
}
