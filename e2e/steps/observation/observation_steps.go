package observation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(ctx context.Context, role, method, path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	ActorID(role string) string
	Scope() (tenant, branch, area string)
	ObservationID() string
	SetObservationID(obsID string)
	Save(key, value string)
	Saved(key string) string
}

// RegisterSteps registers observation lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &observationSteps{tc: tc}

	// Lifecycle
	ctx.Step(`^(\w+) drafts a (LOW|MEDIUM|HIGH|CRITICAL) observation titled "([^"]*)"$`, steps.draft)
	ctx.Step(`^(\w+) moves the observation to (\w+) at version (\d+)$`, steps.moveTo)
	ctx.Step(`^(\w+) tries to move the observation to (\w+) at version (\d+)$`, steps.tryMoveTo)
	ctx.Step(`^the auditee responds with "([^"]*)" at version (\d+)$`, steps.respond)
	ctx.Step(`^the auditee tries to respond at version (\d+)$`, steps.tryRespond)
	ctx.Step(`^the observation is driven to COMPLIANCE$`, steps.driveToCompliance)

	// Repeat findings
	ctx.Step(`^(\d+) observations titled "([^"]*)" were closed in this branch and audit area$`, steps.closedPriors)
	ctx.Step(`^the auditor looks for repeat candidates for "([^"]*)"$`, steps.findCandidates)
	ctx.Step(`^there should be (\d+) repeat candidates$`, steps.candidateCount)
	ctx.Step(`^the auditor confirms the first candidate as a repeat at version (\d+)$`, steps.confirmFirstCandidate)

	// Assertions
	ctx.Step(`^the observation should be (\w+) at version (\d+)$`, steps.shouldBeAt)
	ctx.Step(`^the observation severity should be (\w+)$`, steps.severityShouldBe)
	ctx.Step(`^the timeline should include "([^"]*)"$`, steps.timelineIncludes)
	ctx.Step(`^the timeline should end with "([^"]*)"$`, steps.timelineEndsWith)
}

type observationSteps struct {
	tc TestContext
}

func (s *observationSteps) path(suffix string) string {
	return "/observations/" + s.tc.ObservationID() + suffix
}

func (s *observationSteps) expect(status int) error {
	if got := s.tc.GetLastResponseStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *observationSteps) create(ctx context.Context, role, severity, title string) (string, error) {
	_, branch, area := s.tc.Scope()
	err := s.tc.Do(ctx, role, "POST", "/observations", map[string]any{
		"title":         title,
		"severity":      severity,
		"risk_category": "operational",
		"branch_id":     branch,
		"audit_area_id": area,
		"assignee_id":   s.tc.ActorID("auditee"),
		"narrative": map[string]string{
			"condition": "Control not operating as designed",
			"criteria":  "Branch operations manual",
		},
	})
	if err != nil {
		return "", err
	}
	if err := s.expect(201); err != nil {
		return "", err
	}
	obsID, err := s.tc.GetResponseField("id")
	if err != nil {
		return "", err
	}
	return fmt.Sprint(obsID), nil
}

func (s *observationSteps) draft(ctx context.Context, role, severity, title string) error {
	obsID, err := s.create(ctx, role, severity, title)
	if err != nil {
		return err
	}
	s.tc.SetObservationID(obsID)
	return nil
}

func (s *observationSteps) tryMoveTo(ctx context.Context, role, target string, version int) error {
	return s.tc.Do(ctx, role, "POST", s.path("/transitions"), map[string]any{
		"target_status":    target,
		"comment":          "e2e: " + strings.ToLower(target),
		"expected_version": version,
	})
}

func (s *observationSteps) moveTo(ctx context.Context, role, target string, version int) error {
	if err := s.tryMoveTo(ctx, role, target, version); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *observationSteps) tryRespond(ctx context.Context, version int) error {
	return s.tc.Do(ctx, "auditee", "POST", s.path("/responses"), map[string]any{
		"type":             "clarification",
		"text":             "Corrective action in progress",
		"expected_version": version,
	})
}

func (s *observationSteps) respond(ctx context.Context, responseType string, version int) error {
	err := s.tc.Do(ctx, "auditee", "POST", s.path("/responses"), map[string]any{
		"type":             responseType,
		"text":             "Corrective action in progress",
		"expected_version": version,
	})
	if err != nil {
		return err
	}
	return s.expect(201)
}

func (s *observationSteps) driveToCompliance(ctx context.Context) error {
	for _, step := range []struct {
		role, target string
		version      int
	}{
		{"auditor", "SUBMITTED", 1},
		{"audit_manager", "REVIEWED", 2},
		{"audit_manager", "ISSUED", 3},
	} {
		if err := s.moveTo(ctx, step.role, step.target, step.version); err != nil {
			return err
		}
	}
	if err := s.respond(ctx, "compliance_action", 4); err != nil {
		return err
	}
	return s.moveTo(ctx, "compliance_officer", "COMPLIANCE", 5)
}

func (s *observationSteps) closedPriors(ctx context.Context, count int, title string) error {
	current := s.tc.ObservationID()
	defer s.tc.SetObservationID(current)
	for range count {
		obsID, err := s.create(ctx, "auditor", "MEDIUM", title)
		if err != nil {
			return err
		}
		s.tc.SetObservationID(obsID)
		if err := s.driveToCompliance(ctx); err != nil {
			return err
		}
		if err := s.moveTo(ctx, "chief_audit_executive", "CLOSED", 6); err != nil {
			return err
		}
	}
	return nil
}

func (s *observationSteps) findCandidates(ctx context.Context, title string) error {
	_, branch, area := s.tc.Scope()
	q := url.Values{}
	q.Set("branch_id", branch)
	q.Set("audit_area_id", area)
	q.Set("title", title)
	if err := s.tc.Do(ctx, "auditor", "GET", "/observations/repeat-candidates?"+q.Encode(), nil); err != nil {
		return err
	}
	return s.expect(200)
}

type candidatesBody struct {
	Candidates []struct {
		ObservationID string  `json:"observation_id"`
		Similarity    float64 `json:"similarity"`
	} `json:"candidates"`
}

func (s *observationSteps) candidates() (candidatesBody, error) {
	var body candidatesBody
	err := json.Unmarshal(s.tc.GetLastResponseBody(), &body)
	return body, err
}

func (s *observationSteps) candidateCount(ctx context.Context, want int) error {
	body, err := s.candidates()
	if err != nil {
		return err
	}
	if len(body.Candidates) != want {
		return fmt.Errorf("expected %d candidates, got %d", want, len(body.Candidates))
	}
	if len(body.Candidates) > 0 {
		s.tc.Save("first_candidate", body.Candidates[0].ObservationID)
	}
	return nil
}

func (s *observationSteps) confirmFirstCandidate(ctx context.Context, version int) error {
	previous := s.tc.Saved("first_candidate")
	if previous == "" {
		return fmt.Errorf("no candidate saved; look for candidates first")
	}
	err := s.tc.Do(ctx, "auditor", "POST", s.path("/repeat/confirm"), map[string]any{
		"previous_observation_id": previous,
		"expected_version":        version,
	})
	if err != nil {
		return err
	}
	return s.expect(200)
}

func (s *observationSteps) load(ctx context.Context) (map[string]any, error) {
	if err := s.tc.Do(ctx, "auditor", "GET", s.path(""), nil); err != nil {
		return nil, err
	}
	if err := s.expect(200); err != nil {
		return nil, err
	}
	var obs map[string]any
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &obs); err != nil {
		return nil, err
	}
	return obs, nil
}

func (s *observationSteps) shouldBeAt(ctx context.Context, status string, version int) error {
	obs, err := s.load(ctx)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(obs["status"]); got != status {
		return fmt.Errorf("expected status %s, got %s", status, got)
	}
	// JSON numbers decode as float64.
	if got, _ := obs["version"].(float64); int(got) != version {
		return fmt.Errorf("expected version %d, got %v", version, obs["version"])
	}
	return nil
}

func (s *observationSteps) severityShouldBe(ctx context.Context, severity string) error {
	obs, err := s.load(ctx)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(obs["severity"]); got != severity {
		return fmt.Errorf("expected severity %s, got %s", severity, got)
	}
	return nil
}

func (s *observationSteps) timelineKinds(ctx context.Context) ([]string, error) {
	if err := s.tc.Do(ctx, "auditor", "GET", s.path("/timeline"), nil); err != nil {
		return nil, err
	}
	if err := s.expect(200); err != nil {
		return nil, err
	}
	var body struct {
		Entries []struct {
			Kind string `json:"kind"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return nil, err
	}
	kinds := make([]string, len(body.Entries))
	for i, e := range body.Entries {
		kinds[i] = e.Kind
	}
	return kinds, nil
}

func (s *observationSteps) timelineIncludes(ctx context.Context, kinds string) error {
	got, err := s.timelineKinds(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, k := range got {
		seen[k] = true
	}
	for _, want := range strings.Split(kinds, ",") {
		if !seen[strings.TrimSpace(want)] {
			return fmt.Errorf("timeline %v has no %q entry", got, want)
		}
	}
	return nil
}

func (s *observationSteps) timelineEndsWith(ctx context.Context, kinds string) error {
	got, err := s.timelineKinds(ctx)
	if err != nil {
		return err
	}
	want := strings.Split(kinds, ",")
	if len(got) < len(want) {
		return fmt.Errorf("timeline %v is shorter than %v", got, want)
	}
	tail := got[len(got)-len(want):]
	for i := range want {
		if tail[i] != strings.TrimSpace(want[i]) {
			return fmt.Errorf("timeline ends with %v, expected %v", tail, want)
		}
	}
	return nil
}
