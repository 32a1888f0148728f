package routes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/canvass/canvass/app"
	"github.com/canvass/canvass/httpx"
	"github.com/canvass/canvass/log"
	"github.com/canvass/canvass/script"
	"github.com/canvass/canvass/widget"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

// EmbedScript serves the generated widget script for a survey. The body is
// valid JavaScript on every path, 404 and 500 included, so that a
// <script src> tag pointing here never breaks the hosting page.
func EmbedScript(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawId := chi.URLParam(r, "id")
		surveyId, err := strconv.Atoi(rawId)
		if err != nil || surveyId < 1 {
			log.Debugf("embed.get_url_param.id: %v", rawId)
			writeScript(w, http.StatusNotFound, script.NotFound(rawId))
			return
		}

		survey, baseDomain, apiKey, err := fetchSurvey(r.Context(), app, surveyId)
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("embed.get_survey: not found (%d)", surveyId)
			writeScript(w, http.StatusNotFound, script.NotFound(rawId))
			return
		}
		if err != nil {
			log.Errorf("embed.db.get_survey: %s", err)
			writeScript(w, http.StatusInternalServerError, script.Internal())
			return
		}
		if !survey.Active {
			log.Debugf("embed.get_survey: inactive (%d)", surveyId)
			writeScript(w, http.StatusNotFound, script.NotFound(rawId))
			return
		}

		survey.Elements, err = fetchElements(r.Context(), app, surveyId)
		if err != nil {
			log.Errorf("embed.db.get_elements: %s", err)
			writeScript(w, http.StatusInternalServerError, script.Internal())
			return
		}
		survey.PageRules, err = fetchRules(r.Context(), app, surveyId)
		if err != nil {
			log.Errorf("embed.db.get_rules: %s", err)
			writeScript(w, http.StatusInternalServerError, script.Internal())
			return
		}

		q := r.URL.Query()
		body, err := script.Generate(script.Config{
			Survey:     survey,
			BaseDomain: baseDomain,
			APIBase:    requestBase(r),
			Preview:    boolParam(q.Get("preview")),
			App:        boolParam(q.Get("app")),
			Keyed:      q.Get("key") != "" && q.Get("key") == apiKey,
		})
		if err != nil {
			log.Errorf("embed.generate: %s", err)
			writeScript(w, http.StatusInternalServerError, script.Internal())
			return
		}

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(app.EmbedCacheTTL.Seconds())))
		writeScript(w, http.StatusOK, body)
	}
}

func writeScript(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	if status != http.StatusOK {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	w.Write(body)
}

func boolParam(v string) bool {
	return v == "true" || v == "1"
}

func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

type telemetryPayload struct {
	SessionID    string         `json:"session_id"`
	Route        string         `json:"route"`
	UserAgent    string         `json:"user_agent"`
	TriggerMode  string         `json:"trigger_mode"`
	CustomParams map[string]any `json:"custom_params"`
}

func RecordHit(app app.App) http.HandlerFunc {
	return recordEvent(app, "hit")
}

func RecordExposure(app app.App) http.HandlerFunc {
	return recordEvent(app, "exposure")
}

// recordEvent appends one hit or exposure row. Duplicate sends are accepted
// as-is, the client gates on its side.
func recordEvent(app app.App, table string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		payload := telemetryPayload{}
		err = render.DecodeJSON(r.Body, &payload)
		if err != nil || payload.SessionID == "" {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		var active bool
		err = app.QueryRowContext(r.Context(), "SELECT active FROM survey WHERE id = ?", surveyId).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "record_"+table+".get_survey", surveyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.record_"+table+".get_survey", err)
			return
		}

		var params []byte
		if payload.CustomParams != nil {
			params, err = json.Marshal(payload.CustomParams)
			if err != nil {
				httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_custom_params")
				return
			}
		}

		var eventId int
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO `+table+` (survey_id, session_id, route, device, user_agent, trigger_mode, custom_params, time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			surveyId,
			payload.SessionID,
			payload.Route,
			widget.ClassifyDevice(payload.UserAgent),
			payload.UserAgent,
			payload.TriggerMode,
			string(params),
			time.Now(),
		).Scan(&eventId)
		if err != nil {
			httpx.LogInternalError(w, "db.record_"+table, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": eventId,
		})
	}
}

type responsePayload struct {
	SessionID    string         `json:"session_id"`
	Responses    map[string]any `json:"responses"`
	URL          string         `json:"url"`
	UserAgent    string         `json:"user_agent"`
	TriggerMode  string         `json:"trigger_mode"`
	CustomParams map[string]any `json:"custom_params"`
	Time         time.Time      `json:"time"`
}

// SubmitResponse stores one completed run of the widget: one response row
// plus one row per answered element. Answers arrive keyed by element order
// index.
func SubmitResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil || surveyId < 1 {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		payload := responsePayload{}
		err = render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if payload.SessionID == "" {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.session_id")
			return
		}

		var active bool
		err = app.QueryRowContext(r.Context(), "SELECT active FROM survey WHERE id = ?", surveyId).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "submit_response.get_survey", surveyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.submit_response.get_survey", err)
			return
		}
		if !active {
			httpx.LogNotFound(w, "submit_response.get_survey.inactive", surveyId)
			return
		}

		// answers arrive keyed by order index, rows are keyed by element id
		elements, err := fetchElements(r.Context(), app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.submit_response.get_elements", err)
			return
		}
		byIndex := make(map[string]int, len(elements))
		for _, el := range elements {
			byIndex[strconv.Itoa(el.OrderIndex)] = el.ID
		}

		submittedAt := payload.Time
		if submittedAt.IsZero() {
			submittedAt = time.Now()
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		responseId := uuid.NewString()
		_, err = tx.ExecContext(r.Context(), `
			INSERT INTO response (id, survey_id, session_id, url, user_agent, device, trigger_mode, is_test, time)
			VALUES (?, ?, ?, ?, ?, ?, ?, FALSE, ?)`,
			responseId,
			surveyId,
			payload.SessionID,
			payload.URL,
			payload.UserAgent,
			widget.ClassifyDevice(payload.UserAgent),
			payload.TriggerMode,
			submittedAt,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO response_element (response_id, element_id, value)
			VALUES (?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.elements.prepare", err)
			return
		}
		defer stmt.Close()

		for index, value := range payload.Responses {
			elementId, ok := byIndex[index]
			if !ok {
				log.Debugf("submit_response.unknown_index: %s (survey %d)", index, surveyId)
				continue
			}

			valueJson, err := json.Marshal(value)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_response.elements.parse_value", err)
				return
			}
			_, err = stmt.ExecContext(r.Context(), responseId, elementId, string(valueJson))
			if err != nil {
				httpx.LogInternalError(w, "db.insert_response.elements.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_response.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": responseId,
		})
	}
}
