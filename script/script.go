// Package script assembles the self-contained widget scripts served by the
// embed endpoint. Whatever happens, the output is syntactically valid
// JavaScript: a <script src> tag pointing at us must never break the hosting
// page.
package script

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/canvass/canvass/model"
	"github.com/canvass/canvass/widget"
)

//go:embed widget.js.tmpl
var widgetJS string

var tmpl = template.Must(template.New("widget").Parse(widgetJS))

// Config is everything the generated script needs to run standalone in the
// visitor's browser, with no backend round trip per decision.
type Config struct {
	Survey     model.Survey `json:"survey"`
	BaseDomain string       `json:"base_domain"`
	APIBase    string       `json:"api_base"`
	Preview    bool         `json:"preview"`
	App        bool         `json:"app"`
	Keyed      bool         `json:"keyed"`

	SurveyEvent string `json:"survey_event"`
	GlobalEvent string `json:"global_event"`
}

// Generate renders the widget runtime with the survey's data embedded as
// literal JSON inside a strict-mode IIFE.
func Generate(cfg Config) ([]byte, error) {
	if cfg.SurveyEvent == "" {
		cfg.SurveyEvent = widget.SurveyShowEvent(cfg.Survey.ID)
	}
	if cfg.GlobalEvent == "" {
		cfg.GlobalEvent = widget.GlobalShowEvent
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct{ ConfigJSON string }{string(configJSON)})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NotFound is the body served with a 404 status when a survey does not
// exist or is inactive.
func NotFound(surveyID string) []byte {
	msg, _ := json.Marshal(fmt.Sprintf("canvass: survey %s not found or inactive", surveyID))
	return []byte(fmt.Sprintf("(function(){\"use strict\";console.error(%s);})();\n", msg))
}

// Internal is the body served with a 500 status on infrastructure failure.
func Internal() []byte {
	return []byte("(function(){\"use strict\";console.error(\"canvass: widget temporarily unavailable\");})();\n")
}
