package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a research session
type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Stage identifies one phase of the research pipeline
type Stage string

const (
	StagePlanning  Stage = "planning"
	StageSearching Stage = "searching"
	StageWriting   Stage = "writing"
	StageCompleted Stage = "completed"
)

// Stages lists the pipeline phases in execution order.
var Stages = []Stage{StagePlanning, StageSearching, StageWriting}

// StageStatus represents the state of a single stage
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageActive  StageStatus = "active"
	StageDone    StageStatus = "completed"
	StageFailed  StageStatus = "error"
)

// StageProgress is one record per pipeline stage
type StageProgress struct {
	Stage       Stage       `json:"stage"`
	Status      StageStatus `json:"status"`
	Message     string      `json:"message,omitempty"`
	StartedAt   time.Time   `json:"started_at,omitempty"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
}

// DateRange bounds a time-sensitive search plan
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// SearchPlan is the structured output of the planning stage
type SearchPlan struct {
	Queries         []string   `json:"queries"`
	SearchTypes     []string   `json:"searchTypes"`
	IsTimeSensitive bool       `json:"isTimeSensitive,omitempty"`
	DateRange       *DateRange `json:"dateRange,omitempty"`
	Reasoning       string     `json:"reasoning,omitempty"`
}

// Validate checks structural consistency of a parsed plan.
func (p SearchPlan) Validate() error {
	if len(p.Queries) == 0 {
		return fmt.Errorf("plan has no queries")
	}
	if len(p.Queries) != len(p.SearchTypes) {
		return fmt.Errorf("plan has %d queries but %d search types", len(p.Queries), len(p.SearchTypes))
	}
	for i, q := range p.Queries {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("query %d is empty", i)
		}
	}
	for i, t := range p.SearchTypes {
		if t != "neural" && t != "keyword" {
			return fmt.Errorf("search type %d must be neural or keyword, got %q", i, t)
		}
	}
	if p.IsTimeSensitive {
		if p.DateRange == nil {
			return fmt.Errorf("time-sensitive plan is missing a date range")
		}
		if p.DateRange.StartDate > p.DateRange.EndDate {
			return fmt.Errorf("date range start %s is after end %s", p.DateRange.StartDate, p.DateRange.EndDate)
		}
	}
	return nil
}

// Source is one discovered web document
type Source struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	PublishedDate string `json:"published_date,omitempty"`
	Author        string `json:"author,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
}

// SourceSet holds session-scoped sources deduplicated by URL,
// preserving insertion order.
type SourceSet struct {
	sources []*Source
	byURL   map[string]*Source
}

func NewSourceSet() *SourceSet {
	return &SourceSet{byURL: make(map[string]*Source)}
}

// Add records a source if its URL has not been seen yet. It returns the
// stored source and whether it was newly added.
func (s *SourceSet) Add(title, url, author, publishedDate string) (*Source, bool) {
	if existing, ok := s.byURL[url]; ok {
		return existing, false
	}
	src := &Source{
		ID:            uuid.NewString(),
		Title:         title,
		URL:           url,
		Author:        author,
		PublishedDate: publishedDate,
	}
	s.sources = append(s.sources, src)
	s.byURL[url] = src
	return src, true
}

// Enrich updates the snippet of an already recorded source in place.
// Unknown URLs are ignored.
func (s *SourceSet) Enrich(url, snippet string) {
	if src, ok := s.byURL[url]; ok && snippet != "" {
		src.Snippet = snippet
	}
}

// List returns the sources in discovery order.
func (s *SourceSet) List() []Source {
	out := make([]Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, *src)
	}
	return out
}

func (s *SourceSet) Len() int { return len(s.sources) }

// Session is the unit of work for one research request
type Session struct {
	ID          string                    `json:"id"`
	Topic       string                    `json:"topic"`
	Status      SessionStatus             `json:"status"`
	Stages      map[Stage]*StageProgress  `json:"stages"`
	Sources     *SourceSet                `json:"-"`
	Report      string                    `json:"report,omitempty"`
	Error       string                    `json:"error,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt time.Time                 `json:"completed_at,omitempty"`
}

func NewSession(topic string) *Session {
	stages := make(map[Stage]*StageProgress, len(Stages))
	for _, st := range Stages {
		stages[st] = &StageProgress{Stage: st, Status: StagePending}
	}
	return &Session{
		ID:      uuid.NewString(),
		Topic:   topic,
		Status:  SessionIdle,
		Stages:  stages,
		Sources: NewSourceSet(),
	}
}

// PlanParseError reports that the planner LLM response did not contain a
// usable search plan.
type PlanParseError struct {
	Reason string
	Raw    string
}

func (e *PlanParseError) Error() string {
	return fmt.Sprintf("plan parse failed: %s", e.Reason)
}

// ValidateTopic enforces the request-level topic constraint.
func ValidateTopic(topic string) error {
	if len(strings.TrimSpace(topic)) < 3 {
		return fmt.Errorf("topic must be at least 3 characters")
	}
	return nil
}
