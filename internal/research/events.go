package research

// EventType tags one unit of the pipeline event stream
type EventType string

const (
	EventStageChange EventType = "stage_change"
	EventStatus      EventType = "status"
	EventSource      EventType = "source"
	EventResult      EventType = "result"
	EventError       EventType = "error"
)

// Event is the wire-level unit streamed to the client
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// StageChangeData accompanies stage_change events
type StageChangeData struct {
	Stage   Stage       `json:"stage"`
	Status  StageStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// StatusData accompanies status events
type StatusData struct {
	Message string `json:"message"`
	Stage   Stage  `json:"stage,omitempty"`
}

// SourceData accompanies source events
type SourceData struct {
	Source Source `json:"source"`
}

// ResultData accompanies the terminal result event
type ResultData struct {
	Report  string   `json:"report"`
	Sources []Source `json:"sources"`
}

// ErrorData accompanies error events
type ErrorData struct {
	Message string `json:"message"`
	Stage   Stage  `json:"stage,omitempty"`
}

func stageChangeEvent(stage Stage, status StageStatus, message string) Event {
	return Event{Type: EventStageChange, Data: StageChangeData{Stage: stage, Status: status, Message: message}}
}

func statusEvent(stage Stage, message string) Event {
	return Event{Type: EventStatus, Data: StatusData{Message: message, Stage: stage}}
}

func sourceEvent(src Source) Event {
	return Event{Type: EventSource, Data: SourceData{Source: src}}
}

func resultEvent(report string, sources []Source) Event {
	return Event{Type: EventResult, Data: ResultData{Report: report, Sources: sources}}
}

func errorEvent(stage Stage, message string) Event {
	return Event{Type: EventError, Data: ErrorData{Message: message, Stage: stage}}
}

// IsTerminal reports whether an event ends the stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventResult || e.Type == EventError
}
