// Package guard decides, per navigation, whether a route is reachable
// given the current session state. Route policies are compiled into a
// casbin enforcer keyed by the viewer role.
package guard

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/util"

	"github.com/tourverse/traveler/domain"
	"github.com/tourverse/traveler/internal/config"
)

// Viewer roles. A session is either a guest or an authenticated traveler.
const (
	roleGuest    = "guest"
	roleTraveler = "traveler"
)

const routeModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj)
`

// Decision is the guard's verdict for one navigation.
type Decision struct {
	Allow    bool
	Wait     bool
	Redirect string
	// From carries the originally requested path through a login redirect
	// so the flow can return there after success.
	From string
}

// Guard evaluates route reachability against the declared route table.
type Guard struct {
	enforcer *casbin.Enforcer
	rules    []config.RouteRule
	login    string
	landing  string
}

// New compiles the route table into an enforcer.
func New(rules []config.RouteRule, loginRoute, landingRoute string) (*Guard, error) {
	m, err := model.NewModelFromString(routeModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build route model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build route enforcer: %w", err)
	}

	for _, rule := range rules {
		switch {
		case rule.RequiresAuth:
			if _, err := enforcer.AddPolicy(roleTraveler, rule.Path); err != nil {
				return nil, fmt.Errorf("failed to add route policy for %s: %w", rule.Path, err)
			}
		case rule.GuestOnly:
			if _, err := enforcer.AddPolicy(roleGuest, rule.Path); err != nil {
				return nil, fmt.Errorf("failed to add route policy for %s: %w", rule.Path, err)
			}
		default:
			if _, err := enforcer.AddPolicy(roleGuest, rule.Path); err != nil {
				return nil, fmt.Errorf("failed to add route policy for %s: %w", rule.Path, err)
			}
			if _, err := enforcer.AddPolicy(roleTraveler, rule.Path); err != nil {
				return nil, fmt.Errorf("failed to add route policy for %s: %w", rule.Path, err)
			}
		}
	}

	return &Guard{
		enforcer: enforcer,
		rules:    rules,
		login:    loginRoute,
		landing:  landingRoute,
	}, nil
}

// Evaluate decides the navigation to path under the given session. While
// the initial rehydration is still loading the guard stalls instead of
// making a premature allow/deny call.
func (g *Guard) Evaluate(sess domain.Session, path string) (Decision, error) {
	if sess.Loading {
		return Decision{Wait: true}, nil
	}

	role := roleGuest
	if sess.IsAuthenticated() {
		role = roleTraveler
	}

	allowed, err := g.enforcer.Enforce(role, path)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to enforce route policy: %w", err)
	}
	if allowed {
		return Decision{Allow: true}, nil
	}

	// Routes outside the declared table are unguarded.
	if !g.declared(path) {
		return Decision{Allow: true}, nil
	}

	if sess.IsAuthenticated() {
		// Guest-only route reached while logged in.
		return Decision{Redirect: g.landing}, nil
	}
	return Decision{Redirect: g.login, From: path}, nil
}

// declared reports whether any route rule matches path.
func (g *Guard) declared(path string) bool {
	for _, rule := range g.rules {
		if util.KeyMatch2(path, rule.Path) {
			return true
		}
	}
	return false
}
