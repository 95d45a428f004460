package middleware

import (
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/wildme/houston/internal/models"

	"github.com/gin-gonic/gin"
)

// Binding is the declarative protection of one (method, path) route: the
// scopes its bearer token must grant and the authorization rule evaluated
// after the gate. Registration through the Registry is the single place
// protection is composed, so a route can never accumulate duplicate checks.
type Binding struct {
	Scopes []string
	Rule   RuleBuilder
}

// Registry registers protected routes and answers OPTIONS for each path by
// simulating every sibling method's gate and rule against the caller's actual
// credentials.
type Registry struct {
	gate     *Gate
	enforcer *RuleEnforcer

	// path -> method -> binding
	bindings map[string]map[string]Binding
}

func NewRegistry(gate *Gate, enforcer *RuleEnforcer) *Registry {
	return &Registry{
		gate:     gate,
		enforcer: enforcer,
		bindings: make(map[string]map[string]Binding),
	}
}

// Handle registers a protected route. The first registration for a path also
// installs its OPTIONS introspection handler.
func (r *Registry) Handle(
	group gin.IRoutes,
	method, path string,
	binding Binding,
	handlers ...gin.HandlerFunc,
) {
	if _, ok := r.bindings[path]; !ok {
		r.bindings[path] = make(map[string]Binding)
		group.OPTIONS(path, r.introspect(path))
	}
	if _, dup := r.bindings[path][method]; dup {
		log.Panicf("[Registry] Duplicate binding for %s %s", method, path)
	}
	r.bindings[path][method] = binding

	chain := make([]gin.HandlerFunc, 0, len(handlers)+2)
	chain = append(chain, r.gate.RequireScopes(binding.Scopes...))
	if binding.Rule != nil {
		chain = append(chain, r.enforcer.Enforce(binding.Rule))
	}
	chain = append(chain, handlers...)
	group.Handle(method, path, chain...)
}

// introspect serves OPTIONS for a path: each sibling method is probed with
// the caller's credentials and reported permitted or not. Probing catches
// only authorization outcomes; a panic while building or checking a rule
// marks the method unavailable rather than failing the OPTIONS request.
func (r *Registry) introspect(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, granted, err := r.gate.Authenticate(c)
		if err == nil {
			c.Set(ContextUser, user)
			c.Set(ContextScopes, granted)
		}

		results := make(map[string]bool, len(r.bindings[path]))
		allowed := []string{http.MethodOptions}

		for method, binding := range r.bindings[path] {
			ok := r.probe(c, user, granted, binding)
			results[method] = ok
			if ok {
				allowed = append(allowed, method)
			}
		}

		sort.Strings(allowed)
		c.Header("Allow", strings.Join(allowed, ", "))
		c.JSON(http.StatusOK, results)
	}
}

func (r *Registry) probe(
	c *gin.Context,
	user *models.User,
	granted map[string]bool,
	binding Binding,
) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Registry] Introspection probe panicked: %v", rec)
			ok = false
		}
	}()

	if user == nil {
		return false
	}
	if !models.ScopesSubset(granted, binding.Scopes) {
		return false
	}
	if binding.Rule == nil {
		return true
	}

	rule := binding.Rule(c)
	return r.enforcer.Evaluate(c, rule) == nil
}
