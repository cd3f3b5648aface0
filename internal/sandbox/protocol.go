package sandbox

import (
	"encoding/json"
	"strings"

	"github.com/mohammad-safakhou/deepscout/internal/research"
)

// Markers prefixing protocol lines on the remote program's stdout.
const (
	msgMarker         = "__MSG__"
	researchMsgMarker = "__RESEARCH_MSG__"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeLine translates one stdout line from the remote program into a
// pipeline event. Marker-prefixed lines carry a JSON envelope; anything
// else is passed through as a status message. The second return value is
// false for blank lines and undecodable envelopes.
func DecodeLine(line string) (research.Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return research.Event{}, false
	}

	payload := ""
	switch {
	case strings.HasPrefix(line, researchMsgMarker):
		payload = line[len(researchMsgMarker):]
	case strings.HasPrefix(line, msgMarker):
		payload = line[len(msgMarker):]
	default:
		// Raw passthrough line. The remote program's stage is unknown here,
		// so the status carries none.
		return research.Event{Type: research.EventStatus, Data: research.StatusData{Message: line}}, true
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return research.Event{}, false
	}
	return decodeEnvelope(env)
}

func decodeEnvelope(env envelope) (research.Event, bool) {
	switch research.EventType(env.Type) {
	case research.EventStageChange:
		var d research.StageChangeData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return research.Event{}, false
		}
		return research.Event{Type: research.EventStageChange, Data: d}, true
	case research.EventStatus:
		var d research.StatusData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return research.Event{}, false
		}
		return research.Event{Type: research.EventStatus, Data: d}, true
	case research.EventSource:
		var d research.SourceData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return research.Event{}, false
		}
		return research.Event{Type: research.EventSource, Data: d}, true
	case research.EventResult:
		var d research.ResultData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return research.Event{}, false
		}
		return research.Event{Type: research.EventResult, Data: d}, true
	case research.EventError:
		var d research.ErrorData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return research.Event{}, false
		}
		return research.Event{Type: research.EventError, Data: d}, true
	}

	switch env.Type {
	case "stdout", "stderr":
		var msg string
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			msg = string(env.Data)
		}
		return research.Event{Type: research.EventStatus, Data: research.StatusData{Message: msg}}, true
	}
	return research.Event{}, false
}
