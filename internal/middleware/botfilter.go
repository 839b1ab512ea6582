// Package middleware holds gin middleware specific to the ingest API.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// BotKey is the gin context key holding the matched bot rule for requests
// that should not be stored.
const BotKey = "bot_rule"

// Bot rule names.
const (
	RuleMissingUserAgent = "missing_user_agent"
	RuleCrawler          = "crawler"
	RuleAutomation       = "automation"
)

type botRule struct {
	name  string
	match func(ua string) bool
}

// botRules are checked in order against the lowercased User-Agent.
var botRules = []botRule{
	{RuleMissingUserAgent, func(ua string) bool { return strings.TrimSpace(ua) == "" }},
	{RuleCrawler, containsAny(
		"googlebot", "bingbot", "slurp", "duckduckbot",
		"baiduspider", "yandexbot", "facebookexternalhit",
		"twitterbot", "rogerbot", "linkedinbot", "embedly",
		"quora link preview", "showyoubot", "outbrain",
		"pinterest", "applebot", "semrushbot", "ahrefsbot",
		"mj12bot", "dotbot", "petalbot", "bytespider",
	)},
	{RuleAutomation, containsAny("headlesschrome", "lighthouse", "phantomjs")},
}

func containsAny(patterns ...string) func(string) bool {
	return func(ua string) bool {
		for _, p := range patterns {
			if strings.Contains(ua, p) {
				return true
			}
		}
		return false
	}
}

// BotFilter tags requests matching a bot rule. Ingest still answers them
// but stores nothing.
func BotFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rule := matchBot(strings.ToLower(c.Request.UserAgent())); rule != "" {
			c.Set(BotKey, rule)
		}
		c.Next()
	}
}

// IsBot reports whether BotFilter tagged the request.
func IsBot(c *gin.Context) bool {
	return BotRule(c) != ""
}

// BotRule returns the rule that tagged the request, or "".
func BotRule(c *gin.Context) string {
	return c.GetString(BotKey)
}

func matchBot(ua string) string {
	for _, rule := range botRules {
		if rule.match(ua) {
			return rule.name
		}
	}
	return ""
}
