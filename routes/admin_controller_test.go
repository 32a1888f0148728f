package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/canvass/canvass/app"
	"github.com/canvass/canvass/model"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adminRouter mounts the admin handlers without the token middleware, which
// has its own coverage.
func adminRouter(a app.App) http.Handler {
	r := chi.NewRouter()
	r.Post("/projects", CreateProject(a))
	r.Get("/projects", ListProjects(a))
	r.Put(`/projects/{id:^\d+$}`, UpdateProject(a))
	r.Delete(`/projects/{id:^\d+$}`, DeleteProject(a))
	r.Post("/surveys", CreateSurvey(a))
	r.Get("/surveys", ListSurveys(a))
	r.Get(`/surveys/{id:^\d+$}`, GetSurveyById(a))
	r.Put(`/surveys/{id:^\d+$}`, UpdateSurvey(a))
	r.Delete(`/surveys/{id:^\d+$}`, DeleteSurvey(a))
	r.Get(`/surveys/{id:^\d+$}/responses`, ListResponses(a))
	r.Put("/responses/{id}/test", SetResponseTest(a))
	return r
}

func TestCreateProject(t *testing.T) {
	a := testApp(t)
	handler := adminRouter(a)

	rec := doJSON(t, handler, "POST", "/projects", `{"name": "Acme", "base_domain": "example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID     int    `json:"id"`
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Len(t, created.APIKey, 36)

	rec = doJSON(t, handler, "POST", "/projects", `{"base_domain": "example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProject_InUse(t *testing.T) {
	a := testApp(t)
	surveyId := seedSurvey(t, a, true)
	handler := adminRouter(a)

	var projectId int
	require.NoError(t, a.QueryRow("SELECT project_id FROM survey WHERE id = ?", surveyId).Scan(&projectId))

	rec := doJSON(t, handler, "DELETE", fmt.Sprintf("/projects/%d", projectId), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateSurvey_RoundTrip(t *testing.T) {
	a := testApp(t)
	handler := adminRouter(a)

	rec := doJSON(t, handler, "POST", "/projects", `{"name": "Acme", "base_domain": "example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var project struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))

	rec = doJSON(t, handler, "POST", "/surveys", fmt.Sprintf(`{
		"project_id": %d,
		"title": "Docs feedback",
		"active": true,
		"design": {"position": "bottom-left", "soft_gate": false},
		"target": {
			"trigger_mode": "event",
			"recurrence_mode": "time_sequence",
			"interval_days": 14,
			"max_responses": 2
		},
		"elements": [
			{"type": "textarea", "question": "What is missing?", "required": true},
			{"type": "multiple_choice", "question": "Which section?", "config": {"options": ["API", "Guides"]}},
			{"type": "rating", "question": "How clear is it?", "config": {"rating_min": 1, "rating_max": 5}}
		],
		"page_rules": [
			{"rule_type": "include", "pattern": "^/docs/", "is_regex": true},
			{"rule_type": "exclude", "pattern": "/docs/internal"}
		]
	}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, handler, "GET", fmt.Sprintf("/surveys/%d", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var survey model.Survey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &survey))
	assert.Equal(t, "Docs feedback", survey.Title)
	assert.True(t, survey.Active)
	require.NotNil(t, survey.Design.SoftGate)
	assert.False(t, *survey.Design.SoftGate)
	assert.Equal(t, model.TriggerEvent, survey.Target.TriggerMode)
	assert.Equal(t, 14, survey.Target.IntervalDays)
	assert.Equal(t, 2, survey.Target.MaxResponses)

	require.Len(t, survey.Elements, 3)
	// order indexes are reassigned densely in list order
	for i, el := range survey.Elements {
		assert.Equal(t, i, el.OrderIndex)
	}
	require.NotNil(t, survey.Elements[1].Config)
	assert.Equal(t, []string{"API", "Guides"}, survey.Elements[1].Config.Options)

	require.Len(t, survey.PageRules, 2)
	assert.True(t, survey.PageRules[0].IsRegex)
}

func TestCreateSurvey_Defaults(t *testing.T) {
	a := testApp(t)
	handler := adminRouter(a)

	rec := doJSON(t, handler, "POST", "/projects", `{"name": "Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var project struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))

	rec = doJSON(t, handler, "POST", "/surveys", fmt.Sprintf(`{"project_id": %d, "title": "Bare"}`, project.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, handler, "GET", fmt.Sprintf("/surveys/%d", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var survey model.Survey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &survey))
	assert.Equal(t, model.TriggerTime, survey.Target.TriggerMode)
	assert.Equal(t, model.RecurrenceOneResponse, survey.Target.RecurrenceMode)
	assert.Zero(t, survey.Target.IntervalDays)
	assert.Zero(t, survey.Target.MaxResponses)
	assert.Nil(t, survey.Design.SoftGate)
	assert.True(t, survey.Design.SoftGateEnabled())
}

func TestUpdateSurvey(t *testing.T) {
	a := testApp(t)
	surveyId := seedSurvey(t, a, true)
	handler := adminRouter(a)

	var projectId int
	require.NoError(t, a.QueryRow("SELECT project_id FROM survey WHERE id = ?", surveyId).Scan(&projectId))

	rec := doJSON(t, handler, "PUT", fmt.Sprintf("/surveys/%d", surveyId), fmt.Sprintf(`{
		"project_id": %d,
		"title": "Pricing feedback v2",
		"active": false,
		"elements": [{"type": "text", "question": "Anything else?"}]
	}`, projectId))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, "GET", fmt.Sprintf("/surveys/%d", surveyId), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var survey model.Survey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &survey))
	assert.Equal(t, "Pricing feedback v2", survey.Title)
	assert.False(t, survey.Active)
	require.Len(t, survey.Elements, 1)
	assert.Equal(t, "Anything else?", survey.Elements[0].Question)
}

func TestDeleteSurvey_CascadesTelemetry(t *testing.T) {
	a := testApp(t)
	surveyId := seedSurvey(t, a, true)
	public := Wire(a)
	handler := adminRouter(a)

	rec := doJSON(t, public, "POST", fmt.Sprintf("/api/surveys/%d/hits", surveyId), `{"session_id": "s"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, public, "POST", fmt.Sprintf("/api/surveys/%d/responses", surveyId), `{
		"session_id": "s", "responses": {"0": "ok", "1": 3}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, "DELETE", fmt.Sprintf("/surveys/%d", surveyId), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, table := range []string{"survey", "survey_element", "page_rule", "hit", "response", "response_element"} {
		assert.Zero(t, countRows(t, a, table), table)
	}
}

func TestListSurveys_ProjectFilter(t *testing.T) {
	a := testApp(t)
	surveyId := seedSurvey(t, a, true)
	handler := adminRouter(a)

	var projectId int
	require.NoError(t, a.QueryRow("SELECT project_id FROM survey WHERE id = ?", surveyId).Scan(&projectId))

	rec := doJSON(t, handler, "GET", fmt.Sprintf("/surveys?project=%d", projectId), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Pricing feedback")

	rec = doJSON(t, handler, "GET", "/surveys?project=999", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"surveys":[]`)
}

func TestListResponses(t *testing.T) {
	a := testApp(t)
	surveyId := seedSurvey(t, a, true)
	public := Wire(a)
	handler := adminRouter(a)

	rec := doJSON(t, public, "POST", fmt.Sprintf("/api/surveys/%d/responses", surveyId), `{
		"session_id": "sess-1",
		"responses": {"0": "great", "1": 4},
		"url": "https://shop.example.com/pricing"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, "GET", fmt.Sprintf("/surveys/%d/responses", surveyId), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Responses []model.Response `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Responses, 1)

	resp := listed.Responses[0]
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.False(t, resp.IsTest)
	require.Len(t, resp.Elements, 2)
	assert.Equal(t, "What brings you here?", resp.Elements[0].Question)
	assert.Equal(t, "great", resp.Elements[0].Value)
	assert.Equal(t, float64(4), resp.Elements[1].Value)
}

func TestSetResponseTest(t *testing.T) {
	a := testApp(t)
	surveyId := seedSurvey(t, a, true)
	public := Wire(a)
	handler := adminRouter(a)

	rec := doJSON(t, public, "POST", fmt.Sprintf("/api/surveys/%d/responses", surveyId), `{
		"session_id": "sess-1", "responses": {"0": "ok"}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, handler, "PUT", "/responses/"+created.ID+"/test", `{"is_test": true}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var isTest bool
	require.NoError(t, a.QueryRow("SELECT is_test FROM response WHERE id = ?", created.ID).Scan(&isTest))
	assert.True(t, isTest)

	rec = doJSON(t, handler, "PUT", "/responses/no-such-id/test", `{"is_test": true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateSurvey(t *testing.T) {
	base := func() model.Survey {
		return model.Survey{Title: "ok", ProjectID: 1}
	}

	t.Run("defaults applied", func(t *testing.T) {
		s := base()
		assert.Empty(t, validateSurvey(&s))
		assert.Equal(t, model.TriggerTime, s.Target.TriggerMode)
		assert.Equal(t, model.RecurrenceOneResponse, s.Target.RecurrenceMode)
	})

	t.Run("missing title", func(t *testing.T) {
		s := base()
		s.Title = ""
		assert.NotEmpty(t, validateSurvey(&s))
	})

	t.Run("unknown trigger mode", func(t *testing.T) {
		s := base()
		s.Target.TriggerMode = "scroll"
		assert.NotEmpty(t, validateSurvey(&s))
	})

	t.Run("negative delay", func(t *testing.T) {
		s := base()
		s.Target.DelaySeconds = -1
		assert.NotEmpty(t, validateSurvey(&s))
	})

	t.Run("unknown recurrence mode", func(t *testing.T) {
		s := base()
		s.Target.RecurrenceMode = "weekly"
		assert.NotEmpty(t, validateSurvey(&s))
	})

	t.Run("negative recurrence settings", func(t *testing.T) {
		s := base()
		s.Target.RecurrenceMode = model.RecurrenceTimeSequence
		s.Target.IntervalDays = -1
		assert.NotEmpty(t, validateSurvey(&s))

		s = base()
		s.Target.RecurrenceMode = model.RecurrenceTimeSequence
		s.Target.MaxResponses = -1
		assert.NotEmpty(t, validateSurvey(&s))

		// zero means unset and is accepted
		s = base()
		s.Target.RecurrenceMode = model.RecurrenceTimeSequence
		assert.Empty(t, validateSurvey(&s))
	})

	t.Run("unknown element type", func(t *testing.T) {
		s := base()
		s.Elements = []model.SurveyElement{{Type: "dropdown", Question: "?"}}
		assert.NotEmpty(t, validateSurvey(&s))
	})

	t.Run("multiple choice needs options", func(t *testing.T) {
		s := base()
		s.Elements = []model.SurveyElement{{Type: model.ElementMultipleChoice, Question: "?"}}
		assert.NotEmpty(t, validateSurvey(&s))
	})

	t.Run("rating range", func(t *testing.T) {
		s := base()
		s.Elements = []model.SurveyElement{{
			Type:     model.ElementRating,
			Question: "?",
			Config:   &model.ElementConfig{RatingMin: 5, RatingMax: 5},
		}}
		assert.NotEmpty(t, validateSurvey(&s))
	})

	t.Run("page rule validation", func(t *testing.T) {
		s := base()
		s.PageRules = []model.PageRule{{RuleType: "allow", Pattern: "/x"}}
		assert.NotEmpty(t, validateSurvey(&s))

		s = base()
		s.PageRules = []model.PageRule{{RuleType: model.RuleInclude, Pattern: ""}}
		assert.NotEmpty(t, validateSurvey(&s))
	})
}
