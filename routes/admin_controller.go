package routes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/canvass/canvass/app"
	"github.com/canvass/canvass/httpx"
	"github.com/canvass/canvass/log"
	"github.com/canvass/canvass/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

func CreateProject(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := model.Project{}
		err := render.DecodeJSON(r.Body, &project)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if project.Name == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "project.validate", "missing project name")
			return
		}

		apiKey := uuid.NewString()
		var projectId int
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO project (name, base_domain, api_key) VALUES (?, ?, ?)
			RETURNING id`,
			project.Name,
			project.BaseDomain,
			apiKey,
		).Scan(&projectId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_project", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":      projectId,
			"api_key": apiKey,
		})
	}
}

func ListProjects(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT id, name, base_domain, api_key
			FROM project`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_projects", err)
			return
		}
		defer rows.Close()

		projects := []model.Project{}
		for rows.Next() {
			p := model.Project{}
			err = rows.Scan(&p.ID, &p.Name, &p.BaseDomain, &p.APIKey)
			if err != nil {
				httpx.LogInternalError(w, "db.get_projects.scan", err)
				return
			}
			projects = append(projects, p)
		}

		render.JSON(w, r, map[string]any{
			"projects": projects,
		})
	}
}

func UpdateProject(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		project := model.Project{}
		err = render.DecodeJSON(r.Body, &project)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE project
			SET name = ?, base_domain = ?
			WHERE id = ?`,
			project.Name,
			project.BaseDomain,
			projectId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_project", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_project.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_project", projectId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteProject(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM project WHERE id = ?`,
			projectId,
		)
		if err != nil {
			// surveys still reference the project
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "db.delete_project.in_use")
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_project.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_project", projectId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey := model.Survey{}
		err := render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if msg := validateSurvey(&survey); msg != "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "survey.validate", msg)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var softGate any
		if survey.Design.SoftGate != nil {
			softGate = *survey.Design.SoftGate
		}
		var surveyId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO survey (
				project_id, title, description, active,
				primary_color, background_color, text_color, position, soft_gate,
				trigger_mode, delay_seconds, recurrence_mode, interval_days, max_responses
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			survey.ProjectID, survey.Title, survey.Description, survey.Active,
			survey.Design.PrimaryColor, survey.Design.BackgroundColor, survey.Design.TextColor, survey.Design.Position, softGate,
			survey.Target.TriggerMode, survey.Target.DelaySeconds, survey.Target.RecurrenceMode,
			nullablePositive(survey.Target.IntervalDays), nullablePositive(survey.Target.MaxResponses),
		).Scan(&surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey", err)
			return
		}

		err = insertSurveyGraph(r.Context(), tx, surveyId, survey.Elements, survey.PageRules)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.graph", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": surveyId,
		})
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := `
			SELECT id, project_id, title, description, active, trigger_mode, recurrence_mode
			FROM survey`
		args := []any{}
		if p := r.URL.Query().Get("project"); p != "" {
			projectId, err := strconv.Atoi(p)
			if err != nil {
				httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_query_param.project")
				return
			}
			query += " WHERE project_id = ?"
			args = append(args, projectId)
		}

		rows, err := app.QueryContext(r.Context(), query, args...)
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}
		defer rows.Close()

		surveys := []model.Survey{}
		for rows.Next() {
			s := model.Survey{}
			err = rows.Scan(&s.ID, &s.ProjectID, &s.Title, &s.Description, &s.Active, &s.Target.TriggerMode, &s.Target.RecurrenceMode)
			if err != nil {
				httpx.LogInternalError(w, "db.get_surveys.scan", err)
				return
			}
			surveys = append(surveys, s)
		}

		render.JSON(w, r, map[string]any{
			"surveys": surveys,
		})
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey, _, _, err := fetchSurvey(r.Context(), app, surveyId)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_survey", surveyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}

		survey.Elements, err = fetchElements(r.Context(), app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.elements", err)
			return
		}
		survey.PageRules, err = fetchRules(r.Context(), app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.rules", err)
			return
		}

		render.JSON(w, r, survey)
	}
}

func UpdateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey := model.Survey{}
		err = render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if msg := validateSurvey(&survey); msg != "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "survey.validate", msg)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var softGate any
		if survey.Design.SoftGate != nil {
			softGate = *survey.Design.SoftGate
		}
		res, err := tx.ExecContext(r.Context(), `
			UPDATE survey
			SET
				title = ?,
				description = ?,
				active = ?,
				primary_color = ?,
				background_color = ?,
				text_color = ?,
				position = ?,
				soft_gate = ?,
				trigger_mode = ?,
				delay_seconds = ?,
				recurrence_mode = ?,
				interval_days = ?,
				max_responses = ?
			WHERE id = ?`,
			survey.Title, survey.Description, survey.Active,
			survey.Design.PrimaryColor, survey.Design.BackgroundColor, survey.Design.TextColor, survey.Design.Position, softGate,
			survey.Target.TriggerMode, survey.Target.DelaySeconds, survey.Target.RecurrenceMode,
			nullablePositive(survey.Target.IntervalDays), nullablePositive(survey.Target.MaxResponses),
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_survey", surveyId)
			return
		}

		// recreate the element list and rules wholesale
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM survey_element
			WHERE survey_id = ?`,
			surveyId,
		)
		if err != nil {
			// responses already reference the old elements
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "db.update_survey.elements.in_use")
			return
		}
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM page_rule
			WHERE survey_id = ?`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.rules.delete", err)
			return
		}

		err = insertSurveyGraph(r.Context(), tx, surveyId, survey.Elements, survey.PageRules)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.graph", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		for _, q := range []string{
			`DELETE FROM response_element WHERE response_id IN (SELECT id FROM response WHERE survey_id = ?)`,
			`DELETE FROM response WHERE survey_id = ?`,
			`DELETE FROM hit WHERE survey_id = ?`,
			`DELETE FROM exposure WHERE survey_id = ?`,
			`DELETE FROM page_rule WHERE survey_id = ?`,
			`DELETE FROM survey_element WHERE survey_id = ?`,
		} {
			_, err = tx.ExecContext(r.Context(), q, surveyId)
			if err != nil {
				httpx.LogInternalError(w, "db.delete_survey.children", err)
				return
			}
		}

		res, err := tx.ExecContext(r.Context(), `
			DELETE FROM survey WHERE id = ?`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_survey", surveyId)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func ListResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT id, session_id, url, user_agent, device, trigger_mode, is_test, time
			FROM response
			WHERE survey_id = ?
			ORDER BY time DESC`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses", err)
			return
		}
		defer rows.Close()

		responses := []model.Response{}
		index := map[string]int{}
		for rows.Next() {
			resp := model.Response{SurveyID: surveyId, Elements: []model.ResponseElement{}}
			err = rows.Scan(&resp.ID, &resp.SessionID, &resp.URL, &resp.UserAgent, &resp.Device, &resp.TriggerMode, &resp.IsTest, &resp.Time)
			if err != nil {
				httpx.LogInternalError(w, "db.get_responses.scan", err)
				return
			}
			index[resp.ID] = len(responses)
			responses = append(responses, resp)
		}
		if err = rows.Err(); err != nil {
			httpx.LogInternalError(w, "db.get_responses.rows", err)
			return
		}

		values, err := app.QueryContext(r.Context(), `
			SELECT v.response_id, v.element_id, e.question, v.value
			FROM response_element v
			INNER JOIN survey_element e ON (e.id = v.element_id)
			WHERE e.survey_id = ?
			ORDER BY e.order_index`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_responses.values", err)
			return
		}
		defer values.Close()

		for values.Next() {
			var responseId string
			el := model.ResponseElement{}
			var raw string
			err = values.Scan(&responseId, &el.ElementID, &el.Question, &raw)
			if err != nil {
				httpx.LogInternalError(w, "db.get_responses.values.scan", err)
				return
			}
			if raw != "" {
				err = json.Unmarshal([]byte(raw), &el.Value)
				if err != nil {
					httpx.LogInternalError(w, "db.get_responses.parse_value", err)
					return
				}
			}
			if i, ok := index[responseId]; ok {
				responses[i].Elements = append(responses[i].Elements, el)
			}
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

// SetResponseTest flips the one mutable flag of an otherwise immutable
// response row.
func SetResponseTest(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responseId := chi.URLParam(r, "id")

		body := struct {
			IsTest bool `json:"is_test"`
		}{}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE response SET is_test = ? WHERE id = ?`,
			body.IsTest,
			responseId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_response.is_test", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_response.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_response", responseId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

var elementTypes = map[string]bool{
	model.ElementText:           true,
	model.ElementTextarea:       true,
	model.ElementMultipleChoice: true,
	model.ElementRating:         true,
}

// validateSurvey normalizes defaults and rejects settings the widget could
// not run with. Recurrence values must be positive when given; zero means
// unset and falls back to the widget defaults.
func validateSurvey(survey *model.Survey) string {
	if survey.Title == "" {
		return "missing survey title"
	}
	if survey.ProjectID < 1 {
		return "missing project id"
	}

	switch survey.Target.TriggerMode {
	case "":
		survey.Target.TriggerMode = model.TriggerTime
	case model.TriggerTime, model.TriggerEvent:
	default:
		return "unknown trigger mode: " + survey.Target.TriggerMode
	}
	if survey.Target.DelaySeconds < 0 {
		return "negative trigger delay"
	}

	switch survey.Target.RecurrenceMode {
	case "":
		survey.Target.RecurrenceMode = model.RecurrenceOneResponse
	case model.RecurrenceOneResponse, model.RecurrenceTimeSequence, model.RecurrenceAlways:
	default:
		return "unknown recurrence mode: " + survey.Target.RecurrenceMode
	}
	if survey.Target.RecurrenceMode == model.RecurrenceTimeSequence {
		if survey.Target.IntervalDays < 0 {
			return "negative recurrence interval"
		}
		if survey.Target.MaxResponses < 0 {
			return "negative recurrence max responses"
		}
	}

	for _, el := range survey.Elements {
		if !elementTypes[el.Type] {
			return "unknown element type: " + el.Type
		}
		if el.Question == "" {
			return "element without question text"
		}
		if el.Type == model.ElementMultipleChoice && (el.Config == nil || len(el.Config.Options) == 0) {
			return "multiple choice element without options"
		}
		if el.Type == model.ElementRating && el.Config != nil && el.Config.RatingMax != 0 && el.Config.RatingMax <= el.Config.RatingMin {
			return "rating element with empty range"
		}
	}

	for _, rule := range survey.PageRules {
		if rule.RuleType != model.RuleInclude && rule.RuleType != model.RuleExclude {
			return "unknown page rule type: " + rule.RuleType
		}
		if rule.Pattern == "" {
			return "page rule without pattern"
		}
	}

	return ""
}

// insertSurveyGraph writes the element list and page rules of a survey.
// Order indexes are reassigned densely in list order.
func insertSurveyGraph(ctx context.Context, tx *sql.Tx, surveyId int, elements []model.SurveyElement, rules []model.PageRule) error {
	elStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO survey_element (survey_id, type, question, required, order_index, config)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer elStmt.Close()

	for i, el := range elements {
		var configJson []byte
		if el.Config != nil {
			configJson, err = json.Marshal(el.Config)
			if err != nil {
				return err
			}
		}
		_, err = elStmt.ExecContext(ctx, surveyId, el.Type, el.Question, el.Required, i, string(configJson))
		if err != nil {
			return err
		}
	}

	ruleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO page_rule (survey_id, rule_type, pattern, is_regex)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ruleStmt.Close()

	for _, rule := range rules {
		_, err = ruleStmt.ExecContext(ctx, surveyId, rule.RuleType, rule.Pattern, rule.IsRegex)
		if err != nil {
			return err
		}
	}

	return nil
}

func nullablePositive(n int) any {
	if n > 0 {
		return n
	}
	return nil
}
