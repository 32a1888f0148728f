package routes

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/canvass/canvass/app"
	"github.com/canvass/canvass/model"
)

// fetchSurvey loads one survey row plus its owning project's base domain and
// api key. Elements and page rules are loaded separately.
func fetchSurvey(ctx context.Context, app app.App, id int) (survey model.Survey, baseDomain, apiKey string, err error) {
	var softGate sql.NullBool
	var intervalDays, maxResponses sql.NullInt64

	err = app.QueryRowContext(ctx, `
		SELECT
			s.id, s.project_id, s.title, s.description, s.active,
			s.primary_color, s.background_color, s.text_color, s.position, s.soft_gate,
			s.trigger_mode, s.delay_seconds, s.recurrence_mode, s.interval_days, s.max_responses,
			p.base_domain, p.api_key
		FROM survey s
		INNER JOIN project p ON (s.project_id = p.id)
		WHERE s.id = ?`,
		id,
	).Scan(
		&survey.ID, &survey.ProjectID, &survey.Title, &survey.Description, &survey.Active,
		&survey.Design.PrimaryColor, &survey.Design.BackgroundColor, &survey.Design.TextColor, &survey.Design.Position, &softGate,
		&survey.Target.TriggerMode, &survey.Target.DelaySeconds, &survey.Target.RecurrenceMode, &intervalDays, &maxResponses,
		&baseDomain, &apiKey,
	)
	if err != nil {
		return
	}

	if softGate.Valid {
		b := softGate.Bool
		survey.Design.SoftGate = &b
	}
	if intervalDays.Valid {
		survey.Target.IntervalDays = int(intervalDays.Int64)
	}
	if maxResponses.Valid {
		survey.Target.MaxResponses = int(maxResponses.Int64)
	}
	return
}

func fetchElements(ctx context.Context, app app.App, surveyID int) ([]model.SurveyElement, error) {
	rows, err := app.QueryContext(ctx, `
		SELECT id, type, question, required, order_index, config
		FROM survey_element
		WHERE survey_id = ?
		ORDER BY order_index`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	elements := []model.SurveyElement{}
	for rows.Next() {
		el := model.SurveyElement{}
		var config sql.NullString
		err = rows.Scan(&el.ID, &el.Type, &el.Question, &el.Required, &el.OrderIndex, &config)
		if err != nil {
			return nil, err
		}

		if config.Valid && config.String != "" {
			cfg := model.ElementConfig{}
			err = json.Unmarshal([]byte(config.String), &cfg)
			if err != nil {
				return nil, err
			}
			el.Config = &cfg
		}

		elements = append(elements, el)
	}
	return elements, rows.Err()
}

func fetchRules(ctx context.Context, app app.App, surveyID int) ([]model.PageRule, error) {
	rows, err := app.QueryContext(ctx, `
		SELECT id, rule_type, pattern, is_regex
		FROM page_rule
		WHERE survey_id = ?
		ORDER BY id`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []model.PageRule{}
	for rows.Next() {
		rule := model.PageRule{}
		err = rows.Scan(&rule.ID, &rule.RuleType, &rule.Pattern, &rule.IsRegex)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
