package middleware

import (
	"errors"
	"log"
	"net/http"

	"github.com/wildme/houston/internal/config"
	"github.com/wildme/houston/internal/metrics"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/permissions"
	"github.com/wildme/houston/internal/services"

	"github.com/gin-gonic/gin"
)

// RuleBuilder constructs the authorization rule for one request. Builders
// that guard a concrete object may load it from the request here; returning
// nil means the endpoint has no rule beyond its scopes.
type RuleBuilder func(c *gin.Context) permissions.Rule

// RuleEnforcer evaluates authorization rules after the gate has authenticated
// the request.
type RuleEnforcer struct {
	config  *config.Config
	metrics metrics.Recorder
	audit   *services.AuditService
}

func NewRuleEnforcer(
	cfg *config.Config,
	m metrics.Recorder,
	audit *services.AuditService,
) *RuleEnforcer {
	return &RuleEnforcer{config: cfg, metrics: m, audit: audit}
}

// ruleContext assembles the evaluation context. The form password feeds
// step-up re-auth; everything else comes from the gate.
func ruleContext(c *gin.Context) *permissions.Context {
	return &permissions.Context{
		User:     CurrentUser(c),
		Password: c.PostForm("password"),
	}
}

// Enforce returns a middleware evaluating the built rule once per request.
func (e *RuleEnforcer) Enforce(build RuleBuilder) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule := build(c)
		if rule == nil {
			c.Next()
			return
		}

		err := rule.Check(ruleContext(c))
		if err == nil {
			c.Next()
			return
		}

		e.fail(c, rule, err)
	}
}

// Evaluate runs a rule outside the middleware chain. OPTIONS introspection
// uses it to probe sibling methods without sending a response.
func (e *RuleEnforcer) Evaluate(c *gin.Context, rule permissions.Rule) error {
	if rule == nil {
		return nil
	}
	return rule.Check(ruleContext(c))
}

func (e *RuleEnforcer) fail(c *gin.Context, rule permissions.Rule, err error) {
	if errors.Is(err, permissions.ErrRuleMisuse) {
		e.misuse(c, rule)
		return
	}

	var denial *permissions.Denial
	if !errors.As(err, &denial) {
		// Rules only return denials or misuse; anything else is a defect.
		log.Printf("[Authz] Unexpected rule error from %s: %v", rule.Name(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"message": "internal error",
		})
		return
	}

	e.metrics.RecordPermissionDenied(denial.Rule)

	if e.audit != nil {
		user := CurrentUser(c)
		actorID := ""
		if user != nil {
			actorID = user.ID
		}
		e.audit.Log(c.Request.Context(), services.AuditLogEntry{
			EventType:    models.EventPermissionDenied,
			Severity:     models.SeverityWarning,
			ActorUserID:  actorID,
			ActorIP:      ClientIPFrom(c),
			ResourceType: models.ResourceAuthorization,
			Action:       "Permission denied: " + denial.Rule,
			Details: models.AuditDetails{
				"path":   c.FullPath(),
				"method": c.Request.Method,
			},
			Success: false,
		})
	}

	c.AbortWithStatusJSON(denial.Status, gin.H{
		"status":  denial.Status,
		"message": denial.Message,
	})
}

// misuse handles evaluation of a documentation-only rule: a programming
// defect, never an authorization decision. Debug mode panics so the defect
// cannot be shipped past a test run; release mode logs CRITICAL and serves a
// 500 that reveals nothing.
func (e *RuleEnforcer) misuse(c *gin.Context, rule permissions.Rule) {
	log.Printf("[Authz] CRITICAL: rule %s evaluated at runtime on %s %s",
		rule.Name(), c.Request.Method, c.FullPath())

	if e.audit != nil {
		_ = e.audit.LogSync(c.Request.Context(), services.AuditLogEntry{
			EventType:    models.EventRuleMisuse,
			Severity:     models.SeverityCritical,
			ActorIP:      ClientIPFrom(c),
			ResourceType: models.ResourceAuthorization,
			Action:       "Documentation-only rule evaluated: " + rule.Name(),
			Details: models.AuditDetails{
				"path":   c.FullPath(),
				"method": c.Request.Method,
			},
			Success: false,
		})
	}

	if e.config.DebugMode {
		panic("rule " + rule.Name() + " must never be evaluated")
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"status":  http.StatusInternalServerError,
		"message": "internal error",
	})
}
