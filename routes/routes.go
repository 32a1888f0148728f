package routes

import (
	"net/http"

	"github.com/canvass/canvass/app"
	"github.com/canvass/canvass/routes/middlewares"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	root.
		With(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles("/admin"))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// anonymous widget traffic, CORS-open
	api.Group(func(r chi.Router) {
		r.Use(middlewares.Cors)

		r.Get(`/embed/{id}`, EmbedScript(app))
		r.Options(`/surveys/{id:^\d+$}/*`, func(w http.ResponseWriter, r *http.Request) {})
		r.Post(`/surveys/{id:^\d+$}/hits`, RecordHit(app))
		r.Post(`/surveys/{id:^\d+$}/exposures`, RecordExposure(app))
		r.Post(`/surveys/{id:^\d+$}/responses`, SubmitResponse(app))
	})

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD project
		r.Post("/projects", CreateProject(app))
		r.Get("/projects", ListProjects(app))
		r.Put(`/projects/{id:^\d+$}`, UpdateProject(app))
		r.Delete(`/projects/{id:^\d+$}`, DeleteProject(app))

		// CRUD survey
		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys", ListSurveys(app))
		r.Get(`/surveys/{id:^\d+$}`, GetSurveyById(app))
		r.Put(`/surveys/{id:^\d+$}`, UpdateSurvey(app))
		r.Delete(`/surveys/{id:^\d+$}`, DeleteSurvey(app))

		r.Get(`/surveys/{id:^\d+$}/responses`, ListResponses(app))
		r.Put("/responses/{id}/test", SetResponseTest(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

func servePrivateFiles(path string) http.Handler {
	return http.StripPrefix(path, http.FileServer(http.Dir("private")))
}
