package mutagen

import (
	"strings"

	"github.com/burrow-dev/burrow/pkg/engine"
)

// noSessionsMarker is what `mutagen sync list` prints when the label
// selector matches nothing.
const noSessionsMarker = "no sessions found"

// parseSessionList translates the human-oriented `mutagen sync list` output
// into sessions. The output format is an opaque contract validated against
// recorded fixtures; anything we cannot parse becomes a degraded synthetic
// session rather than a silent no-op, so status always has a defined
// answer.
func parseSessionList(output string) []engine.Session {
	var sessions []engine.Session
	var current *engine.Session

	flush := func() {
		if current != nil && (current.ID != "" || current.Name != "") {
			if current.State == "" {
				current.State = engine.StatePending
			}
			sessions = append(sessions, *current)
		}
		current = nil
	}

	sawContent := false
	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "----") {
			flush()
			continue
		}
		sawContent = true

		if strings.EqualFold(line, noSessionsMarker) {
			return nil
		}

		key, value, ok := splitField(line)
		if !ok {
			continue
		}
		switch key {
		case "Identifier":
			flush()
			current = &engine.Session{ID: value}
		case "Name":
			if current == nil {
				current = &engine.Session{}
			}
			current.Name = value
		case "Status":
			if current == nil {
				current = &engine.Session{}
			}
			current.StatusText = value
			current.State = TranslateStatus(value)
		}
	}
	flush()

	if len(sessions) == 0 && sawContent {
		// Output format drift: surface the raw text as a degraded session
		// so the caller never mistakes it for "no sessions".
		return []engine.Session{{
			StatusText: strings.TrimSpace(output),
			State:      engine.StateDegraded,
		}}
	}
	return sessions
}

func splitField(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// TranslateStatus maps mutagen's free-text session status into Burrow's
// state vocabulary. Unknown text maps to degraded, never to a healthy
// state.
func TranslateStatus(text string) engine.State {
	status := strings.ToLower(strings.TrimSpace(text))
	switch {
	case status == "":
		return engine.StatePending

	case strings.Contains(status, "watching for changes"):
		return engine.StateActive

	case strings.Contains(status, "connecting"),
		strings.Contains(status, "waiting to connect"):
		return engine.StateConnecting

	case strings.Contains(status, "scanning"),
		strings.Contains(status, "staging"),
		strings.Contains(status, "reconciling"),
		strings.Contains(status, "transitioning"),
		strings.Contains(status, "saving archive"),
		strings.Contains(status, "waiting 5 seconds for rescan"):
		return engine.StatePending

	default:
		return engine.StateDegraded
	}
}
