package guard

import (
	"strings"

	"taskflow/backend/internal/session"
)

const (
	RouteLanding = "/"
	RouteSignIn  = "/login"
	RouteSignUp  = "/register"
	RouteMain    = "/dashboard"
)

type Action int

const (
	Render Action = iota
	// ShowLoading renders a neutral placeholder while the session resolves.
	ShowLoading
	Redirect
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case ShowLoading:
		return "loading"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

type Decision struct {
	Action Action
	Target string
}

type Config struct {
	SignIn string
	SignUp string
	Main   string
	Public []string
}

func DefaultConfig() Config {
	return Config{
		SignIn: RouteSignIn,
		SignUp: RouteSignUp,
		Main:   RouteMain,
		Public: []string{RouteLanding, RouteSignIn, RouteSignUp},
	}
}

type Guard struct {
	signIn string
	signUp string
	main   string
	public map[string]bool
}

func New(config Config) *Guard {
	g := &Guard{
		signIn: config.SignIn,
		signUp: config.SignUp,
		main:   config.Main,
		public: make(map[string]bool, len(config.Public)),
	}
	for _, route := range config.Public {
		g.public[normalize(route)] = true
	}
	return g
}

// IsPublic reports whether route is on the allow-list.
func (g *Guard) IsPublic(route string) bool {
	return g.public[normalize(route)]
}

func (g *Guard) Decide(state session.State, route string) Decision {
	route = normalize(route)

	switch state {
	case session.Unauthenticated:
		if g.public[route] {
			return Decision{Action: Render}
		}
		return Decision{Action: Redirect, Target: g.signIn}
	case session.Authenticated:
		if route == g.signIn || route == g.signUp {
			return Decision{Action: Redirect, Target: g.main}
		}
		return Decision{Action: Render}
	default:
		return Decision{Action: ShowLoading}
	}
}

func normalize(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
	}
	if route == "" {
		return "/"
	}
	return route
}
