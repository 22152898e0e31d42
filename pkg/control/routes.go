package control

import (
	"github.com/jingkaihe/gameward/pkg/httpwire"
	"github.com/jingkaihe/gameward/pkg/logging"
	"github.com/jingkaihe/gameward/pkg/render"
	"github.com/jingkaihe/gameward/pkg/session"
)

const (
	sessionCookie = "login"
	sessionMaxAge = 86400

	loginError = "Invalid username or password."
)

// route keys the dispatch table by mode and the exact request line.
type route struct {
	mode Mode
	line string
}

type handler func(*Loop, *exchange) *httpwire.Response

// exchange is one request as seen by a handler.
type exchange struct {
	req    *httpwire.Request
	remote string
	// session is nil unless the login cookie names a live session.
	session *session.Session
}

func (ex *exchange) username() string {
	if ex.session == nil {
		return ""
	}
	return ex.session.Username
}

func buildRoutes() map[route]handler {
	tables := map[Mode]map[string]handler{
		ModeRunning: {
			"GET /":         (*Loop).loginPage,
			"POST /":        (*Loop).login,
			"GET /console":  authed((*Loop).console),
			"POST /console": authed((*Loop).sendCommand),
			"GET /data":     authed((*Loop).data),
			"GET /logout":   (*Loop).logout,
			"GET /stop":     authed((*Loop).stop),
			"GET /kill":     authed((*Loop).kill),
		},
		ModeIdle: {
			"GET /":        (*Loop).loginPage,
			"POST /":       (*Loop).login,
			"GET /console": authed((*Loop).offline),
			"GET /data":    authed((*Loop).data),
			"GET /logout":  (*Loop).logout,
			"GET /start":   authed((*Loop).start),
			"GET /kill":    authed((*Loop).killIdle),
		},
	}
	routes := make(map[route]handler)
	for mode, table := range tables {
		for target, h := range table {
			routes[route{mode: mode, line: target + " HTTP/1.1"}] = h
		}
	}
	return routes
}

// authed redirects to the login page unless the request carries a live
// session.
func authed(h handler) handler {
	return func(l *Loop, ex *exchange) *httpwire.Response {
		if ex.session == nil {
			return httpwire.Redirect("/")
		}
		return h(l, ex)
	}
}

func (l *Loop) dispatch(req *httpwire.Request, remote string) *httpwire.Response {
	h, ok := l.routes[route{mode: l.mode, line: req.Line}]
	if !ok {
		return l.page(httpwire.StatusNotFound, render.ViewNotFound, render.Data{Title: "Not found"})
	}
	ex := &exchange{req: req, remote: remote}
	if token, ok := req.Cookie(sessionCookie); ok {
		ex.session, _ = l.sessions.Lookup(token)
	}
	return h(l, ex)
}

func (l *Loop) loginPage(ex *exchange) *httpwire.Response {
	if ex.session != nil {
		return httpwire.Redirect("/console")
	}
	return l.page(httpwire.StatusOK, render.ViewLogin, render.Data{Title: "Log in"})
}

func (l *Loop) login(ex *exchange) *httpwire.Response {
	username, _ := ex.req.FormValue("username")
	password, _ := ex.req.FormValue("password")

	switch {
	case session.Matches(l.opts.Auth.Login, username, password):
		return l.issueSession(ex, username, "login")
	case session.Matches(l.opts.Auth.Start, username, password):
		if l.mode == ModeIdle {
			return l.startServer(ex, username)
		}
		return l.issueSession(ex, username, "start")
	}

	l.logger.Info("login failed", "username", username, "remote", ex.remote)
	l.emit(logging.EventLoginFailed, "login failed for "+username, &logging.LoginData{Username: username, RemoteAddr: ex.remote})
	return l.page(httpwire.StatusOK, render.ViewLogin, render.Data{Title: "Log in", Error: loginError})
}

func (l *Loop) issueSession(ex *exchange, username, via string) *httpwire.Response {
	sess := l.sessions.Create(username, ex.remote)
	l.logger.Info("login", "username", username, "remote", ex.remote, "via", via)
	l.emit(logging.EventLoginSucceeded, username+" logged in", &logging.LoginData{Username: username, RemoteAddr: ex.remote, Via: via})
	return httpwire.Redirect("/console").WithHeader(httpwire.SetCookie(sessionCookie, sess.Token, sessionMaxAge))
}

func (l *Loop) logout(ex *exchange) *httpwire.Response {
	if ex.session != nil && l.sessions.Revoke(ex.session.Token) {
		l.emit(logging.EventLogout, ex.session.Username+" logged out", &logging.LoginData{Username: ex.session.Username, RemoteAddr: ex.remote})
	}
	return httpwire.Redirect("/").WithHeader(httpwire.SetCookie(sessionCookie, "", -1))
}

func (l *Loop) console(ex *exchange) *httpwire.Response {
	return l.page(httpwire.StatusOK, render.ViewConsole, render.Data{Title: "Console", Lines: l.opts.Relay.Ring().Lines()})
}

func (l *Loop) offline(ex *exchange) *httpwire.Response {
	return l.page(httpwire.StatusOK, render.ViewOffline, render.Data{Title: "Offline", Lines: l.opts.Relay.Ring().Lines()})
}

func (l *Loop) data(ex *exchange) *httpwire.Response {
	return httpwire.Text(httpwire.StatusOK, l.opts.Relay.Ring().String())
}

func (l *Loop) sendCommand(ex *exchange) *httpwire.Response {
	command, ok := ex.req.FormValue("command")
	if !ok || command == "" {
		return httpwire.Redirect("/console")
	}
	if err := l.proc.SendLine(command); err != nil {
		return httpwire.Redirect("/console")
	}
	l.emit(logging.EventCommandSent, ex.username()+": "+command, &logging.CommandData{
		Username:   ex.username(),
		RemoteAddr: ex.remote,
		Command:    command,
		Source:     "web",
	})
	return httpwire.Redirect("/console")
}

func (l *Loop) stop(ex *exchange) *httpwire.Response {
	l.logger.Info("stop requested", "username", ex.username(), "remote", ex.remote)
	l.emit(logging.EventStopRequested, "stop requested by "+ex.username(), l.controlData(ex, "stop"))
	_ = l.proc.SendLine(l.opts.StopCommand)
	return httpwire.Redirect("/console")
}

// kill stops the server like stop does and shuts gameward down once the
// exit has been observed.
func (l *Loop) kill(ex *exchange) *httpwire.Response {
	l.logger.Info("kill requested", "username", ex.username(), "remote", ex.remote)
	l.emit(logging.EventKillRequested, "kill requested by "+ex.username(), l.controlData(ex, "kill"))
	l.killRequested = true
	_ = l.proc.SendLine(l.opts.StopCommand)
	return httpwire.Redirect("/console")
}

func (l *Loop) killIdle(ex *exchange) *httpwire.Response {
	l.logger.Info("kill requested while idle", "username", ex.username(), "remote", ex.remote)
	l.emit(logging.EventKillRequested, "kill requested by "+ex.username(), l.controlData(ex, "kill"))
	l.mode = ModeShuttingDown
	return httpwire.Redirect("/")
}

func (l *Loop) start(ex *exchange) *httpwire.Response {
	return l.startServer(ex, ex.username())
}

// startServer spawns a new server. Spawning drops every session, so the
// requester gets a fresh one.
func (l *Loop) startServer(ex *exchange, username string) *httpwire.Response {
	l.logger.Info("start requested", "username", username, "remote", ex.remote)
	l.emit(logging.EventStartRequested, "start requested by "+username, &logging.ControlData{
		Username:   username,
		RemoteAddr: ex.remote,
		Mode:       l.mode.String(),
	})
	if err := l.spawn(); err != nil {
		l.logger.Error("start server", "error", err)
		l.fatal = err
		return l.page(httpwire.StatusError, render.ViewError, render.Data{Title: "Error", Message: "The server could not be started."})
	}
	sess := l.sessions.Create(username, ex.remote)
	return httpwire.Redirect("/console").WithHeader(httpwire.SetCookie(sessionCookie, sess.Token, sessionMaxAge))
}

func (l *Loop) controlData(ex *exchange, reason string) *logging.ControlData {
	return &logging.ControlData{
		Username:   ex.username(),
		RemoteAddr: ex.remote,
		Mode:       l.mode.String(),
		Reason:     reason,
	}
}

func (l *Loop) page(status, view string, data render.Data) *httpwire.Response {
	body, err := l.opts.Renderer.Render(view, data)
	if err != nil {
		l.logger.Error("render view", "view", view, "error", err)
		return httpwire.Text(httpwire.StatusError, "internal error\n")
	}
	return httpwire.HTML(status, body)
}
