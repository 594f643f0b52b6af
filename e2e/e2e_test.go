package e2e

import (
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the Gherkin suite against a live server started with the
// same JWT_SIGNING_KEY. Set E2E_BASE_URL to enable it.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("E2E_BASE_URL")
	if baseURL == "" {
		t.Skip("E2E_BASE_URL not set")
	}
	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		key = "dev-secret-key-change-in-production"
	}
	tc := NewTestContext(baseURL, key)

	suite := godog.TestSuite{
		Name: "auditgov",
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature suite failed")
	}
}
