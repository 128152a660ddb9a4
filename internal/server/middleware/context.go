package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/clarifier/pkg/catalog"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
)

// AppUser is the authenticated caller: either a JWT subject or the master
// API key acting with full permissions.
type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// App holds the shared clients every request handler reaches through the
// context: database pool, queue channel for enqueuing runs, JWKS keys,
// S3 client, the catalog store, and the normalization table used for
// name lookups (same folding as the pipeline).
type App struct {
	DBConn         *pgxpool.Pool
	Queue          *amqp091.Channel
	Key            *keyfunc.Keyfunc
	S3             *s3.Client
	Store          store.CatalogStorage
	Table          *catalog.NormalizationTable
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

// AppContextMiddleware wraps every request context with the shared App.
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
