package sandbox

import (
	"testing"

	"github.com/mohammad-safakhou/deepscout/internal/research"
)

func TestDecodeLineResearchEnvelope(t *testing.T) {
	line := `__RESEARCH_MSG__{"type":"stage_change","data":{"stage":"planning","status":"active"}}`
	ev, ok := DecodeLine(line)
	if !ok {
		t.Fatalf("expected decodable line")
	}
	if ev.Type != research.EventStageChange {
		t.Fatalf("unexpected type %s", ev.Type)
	}
	d := ev.Data.(research.StageChangeData)
	if d.Stage != research.StagePlanning || d.Status != research.StageActive {
		t.Fatalf("unexpected payload %+v", d)
	}
}

func TestDecodeLineLegacyMarker(t *testing.T) {
	line := `__MSG__{"type":"error","data":{"message":"boom","stage":"writing"}}`
	ev, ok := DecodeLine(line)
	if !ok {
		t.Fatalf("expected decodable line")
	}
	d := ev.Data.(research.ErrorData)
	if d.Message != "boom" || d.Stage != research.StageWriting {
		t.Fatalf("unexpected payload %+v", d)
	}
}

func TestDecodeLineSourceEvent(t *testing.T) {
	line := `__RESEARCH_MSG__{"type":"source","data":{"source":{"id":"s1","title":"T","url":"https://t.example"}}}`
	ev, ok := DecodeLine(line)
	if !ok {
		t.Fatalf("expected decodable line")
	}
	d := ev.Data.(research.SourceData)
	if d.Source.URL != "https://t.example" {
		t.Fatalf("unexpected source %+v", d.Source)
	}
}

func TestDecodeLineRawPassthrough(t *testing.T) {
	ev, ok := DecodeLine("go: downloading modules")
	if !ok {
		t.Fatalf("raw lines pass through as status")
	}
	if ev.Type != research.EventStatus {
		t.Fatalf("unexpected type %s", ev.Type)
	}
	d := ev.Data.(research.StatusData)
	if d.Message != "go: downloading modules" {
		t.Fatalf("unexpected payload %+v", d)
	}
	if d.Stage != "" {
		t.Fatalf("passthrough lines must not claim a stage, got %q", d.Stage)
	}
}

func TestDecodeLineStdoutEnvelope(t *testing.T) {
	ev, ok := DecodeLine(`__MSG__{"type":"stdout","data":"progress 3/4"}`)
	if !ok {
		t.Fatalf("expected decodable line")
	}
	if ev.Type != research.EventStatus || ev.Data.(research.StatusData).Message != "progress 3/4" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Data.(research.StatusData).Stage != "" {
		t.Fatalf("stdout envelopes must not claim a stage")
	}
}

func TestDecodeLineRejectsGarbage(t *testing.T) {
	if _, ok := DecodeLine(""); ok {
		t.Fatalf("blank line must not decode")
	}
	if _, ok := DecodeLine("__RESEARCH_MSG__not json at all"); ok {
		t.Fatalf("bad envelope must not decode")
	}
	if _, ok := DecodeLine(`__RESEARCH_MSG__{"type":"unknown","data":{}}`); ok {
		t.Fatalf("unknown envelope type must not decode")
	}
}
