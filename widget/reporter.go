package widget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/canvass/canvass/log"
	"github.com/canvass/canvass/model"
)

// Submission is one completed run of the step runner. Responses are keyed by
// element order index, the way the widget ships them over the wire.
type Submission struct {
	SurveyID     int            `json:"-"`
	SessionID    string         `json:"session_id"`
	Responses    map[string]any `json:"responses"`
	URL          string         `json:"url,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	TriggerMode  string         `json:"trigger_mode,omitempty"`
	CustomParams map[string]any `json:"custom_params,omitempty"`
	Time         time.Time      `json:"time"`
}

// Reporter persists widget telemetry. Hit and exposure reporting is
// fire-and-forget: duplicate sends are acceptable and failures must never
// surface to the visitor. Response submission is the one call whose outcome
// the widget waits on.
type Reporter interface {
	RecordHit(ev model.TelemetryEvent)
	RecordExposure(ev model.TelemetryEvent)
	SubmitResponse(sub Submission) error
}

// HTTPReporter posts telemetry to the public collection endpoints.
type HTTPReporter struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPReporter(baseURL string) *HTTPReporter {
	return &HTTPReporter{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPReporter) RecordHit(ev model.TelemetryEvent) {
	go r.post(fmt.Sprintf("%s/api/surveys/%d/hits", r.BaseURL, ev.SurveyID), ev, "telemetry.hit")
}

func (r *HTTPReporter) RecordExposure(ev model.TelemetryEvent) {
	go r.post(fmt.Sprintf("%s/api/surveys/%d/exposures", r.BaseURL, ev.SurveyID), ev, "telemetry.exposure")
}

func (r *HTTPReporter) SubmitResponse(sub Submission) error {
	return r.post(fmt.Sprintf("%s/api/surveys/%d/responses", r.BaseURL, sub.SurveyID), sub, "telemetry.response")
}

func (r *HTTPReporter) post(url string, payload any, code string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("%s: %s", code, err)
		return err
	}

	resp, err := r.Client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Errorf("%s: %s", code, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		log.Errorf("%s: %s", code, err)
		return err
	}
	return nil
}
