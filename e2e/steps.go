package e2e

import (
	"context"

	"github.com/cucumber/godog"

	"auditgov/e2e/steps/common"
	"auditgov/e2e/steps/observation"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})

	// Status and error envelope assertions
	common.RegisterSteps(ctx, tc)

	// Lifecycle, repeat findings and concurrency
	observation.RegisterSteps(ctx, tc)
}
