// Package audit writes one structured log entry per bridge request,
// describing the request, the authorization outcome and any upstream call.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the log level audit entries are written at. It sits above every
// standard level so audit entries are never filtered out.
const Level = zerolog.Level(20)

// LevelName renders Level as "audit" and defers to zerolog otherwise. It is
// intended for zerolog.LevelFieldMarshalFunc.
func LevelName(l zerolog.Level) string {
	if l == Level {
		return "audit"
	}
	return l.String()
}

// Entry is the audit record of a single request. Handlers fill in the
// authorization and upstream fields as they learn them.
type Entry struct {
	Method    string
	Path      string
	Status    int
	SourceIP  string
	UserAgent string

	// Authorized reports whether the client held an access token when the
	// request finished.
	Authorized bool
	// StateChecked is set when a callback carried a state parameter.
	StateChecked bool
	Scopes       []string

	UpstreamPath   string
	UpstreamStatus int

	Error string
}

func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	ev.Dict("request", zerolog.Dict().
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent),
	)

	authorization := NewOptionalEvent(nil).
		Bool("authorized", e.Authorized).
		Strs("scopes", e.Scopes)
	if e.StateChecked {
		authorization.Bool("stateChecked", true)
	}
	authorization.Set(ev, "authorization")

	NewOptionalEvent(nil).
		Str("path", e.UpstreamPath).
		Int("status", e.UpstreamStatus).
		Set(ev, "upstream")

	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

// Begin records the request details.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.UserAgent = r.UserAgent()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	e.SourceIP = host
}

// End returns a function that writes the entry. It must be deferred directly
// so that it can record a panic, which is re-raised after logging.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		r := recover()
		if r != nil {
			if e.Error != "" {
				e.Error += "; "
			}
			e.Error += fmt.Sprintf("panic: %v", r)
		}

		if e.Status == 0 {
			e.Status = http.StatusOK
		}

		log.Ctx(ctx).WithLevel(Level).EmbedObject(e).Msg("audit_event")

		if r != nil {
			panic(r)
		}
	}
}

type key struct{}

// Context returns the entry stored in ctx, adding a new one if there is none.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(key{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, key{}, e), e
}

// Log returns the entry for the current request. Outside of the middleware a
// detached entry is returned so callers never need a nil check.
func Log(ctx context.Context) *Entry {
	if e, ok := ctx.Value(key{}).(*Entry); ok {
		return e
	}
	return &Entry{}
}

// Middleware writes an audit entry for every request, including requests
// whose handler panics.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)

			defer entry.End(ctx)()

			w = httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						entry.Status = code
						next(code)
					}
				},
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
