package app

import (
	"database/sql"

	"github.com/canvass/canvass/config"
	"github.com/go-chi/oauth"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
}
