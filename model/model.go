package model

import "time"

// Element types renderable by the widget.
const (
	ElementText           = "text"
	ElementTextarea       = "textarea"
	ElementMultipleChoice = "multiple_choice"
	ElementRating         = "rating"
)

// Trigger modes.
const (
	TriggerTime  = "time"
	TriggerEvent = "event"
)

// Recurrence modes.
const (
	RecurrenceOneResponse  = "one_response"
	RecurrenceTimeSequence = "time_sequence"
	RecurrenceAlways       = "always"
)

// Page rule types.
const (
	RuleInclude = "include"
	RuleExclude = "exclude"
)

type Project struct {
	ID         int    `json:"id,omitempty"`
	Name       string `json:"name"`
	BaseDomain string `json:"base_domain"`
	APIKey     string `json:"api_key,omitempty"`
}

type Survey struct {
	ID          int    `json:"id,omitempty"`
	ProjectID   int    `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Active      bool   `json:"active"`

	Design Design `json:"design"`
	Target Target `json:"target"`

	Elements  []SurveyElement `json:"elements,omitempty"`
	PageRules []PageRule      `json:"page_rules,omitempty"`
}

// Design holds the widget appearance settings.
type Design struct {
	PrimaryColor    string `json:"primary_color"`
	BackgroundColor string `json:"background_color"`
	TextColor       string `json:"text_color"`
	Position        string `json:"position"`
	SoftGate        *bool  `json:"soft_gate,omitempty"` // nil means enabled
}

// Target holds the trigger and recurrence settings.
type Target struct {
	TriggerMode    string `json:"trigger_mode"`
	DelaySeconds   int    `json:"delay_seconds"`
	RecurrenceMode string `json:"recurrence_mode"`
	IntervalDays   int    `json:"interval_days,omitempty"`
	MaxResponses   int    `json:"max_responses,omitempty"`
}

// SoftGateEnabled reports whether the opt-in prompt should be shown.
// The prompt is on unless explicitly disabled.
func (d Design) SoftGateEnabled() bool {
	return d.SoftGate == nil || *d.SoftGate
}

type SurveyElement struct {
	ID         int    `json:"id,omitempty"`
	Type       string `json:"type"`
	Question   string `json:"question"`
	Required   bool   `json:"required"`
	OrderIndex int    `json:"order_index"`

	Config *ElementConfig `json:"config,omitempty"`
}

// ElementConfig is the type-specific configuration blob of a SurveyElement.
type ElementConfig struct {
	Placeholder   string   `json:"placeholder,omitempty"`
	Options       []string `json:"options,omitempty"`
	AllowMultiple bool     `json:"allow_multiple,omitempty"`
	RatingMin     int      `json:"rating_min,omitempty"`
	RatingMax     int      `json:"rating_max,omitempty"`
	RatingDefault int      `json:"rating_default,omitempty"`
}

type PageRule struct {
	ID       int    `json:"id,omitempty"`
	RuleType string `json:"rule_type"`
	Pattern  string `json:"pattern"`
	IsRegex  bool   `json:"is_regex"`
}

type Response struct {
	ID          string            `json:"id"`
	SurveyID    int               `json:"survey_id"`
	SessionID   string            `json:"session_id"`
	URL         string            `json:"url,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Device      string            `json:"device,omitempty"`
	TriggerMode string            `json:"trigger_mode,omitempty"`
	IsTest      bool              `json:"is_test"`
	Time        time.Time         `json:"time"`
	Elements    []ResponseElement `json:"elements,omitempty"`
}

type ResponseElement struct {
	ElementID int    `json:"element_id"`
	Question  string `json:"question,omitempty"`
	Value     any    `json:"value"`
}

// TelemetryEvent is one hit or exposure row. Append-only.
type TelemetryEvent struct {
	ID           int            `json:"id,omitempty"`
	SurveyID     int            `json:"survey_id"`
	SessionID    string         `json:"session_id"`
	Route        string         `json:"route,omitempty"`
	Device       string         `json:"device,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	TriggerMode  string         `json:"trigger_mode,omitempty"`
	CustomParams map[string]any `json:"custom_params,omitempty"`
	Time         time.Time      `json:"time"`
}
