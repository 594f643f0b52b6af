package models

import (
	"fmt"
	"strings"

	id "auditgov/pkg/domain"
	dErrors "auditgov/pkg/domain-errors"
)

// EdgeRule describes who may move an Observation along one edge.
type EdgeRule struct {
	// Requires lists capabilities of which the actor needs at least one.
	// Ignored when SeverityGated is set.
	Requires []id.Capability
	// SeverityGated edges need close_standard for LOW/MEDIUM and
	// close_elevated for HIGH/CRITICAL.
	SeverityGated bool
	// MakerChecker forbids the creator from taking this edge.
	MakerChecker bool
	// Automatic edges may also be taken by the system on an actor's behalf.
	Automatic bool
}

type edge struct {
	from, to Status
}

// transitionTable is the single source of truth for the lifecycle graph.
var transitionTable = map[edge]EdgeRule{
	{StatusDraft, StatusSubmitted}:    {Requires: []id.Capability{id.CapSubmit}},
	{StatusSubmitted, StatusDraft}:    {Requires: []id.Capability{id.CapReview}},
	{StatusSubmitted, StatusReviewed}: {Requires: []id.Capability{id.CapReview}, MakerChecker: true},
	{StatusReviewed, StatusSubmitted}: {Requires: []id.Capability{id.CapReview}},
	{StatusReviewed, StatusIssued}:    {Requires: []id.Capability{id.CapReview}},
	{StatusIssued, StatusResponse}: {
		Requires:  []id.Capability{id.CapRespond, id.CapSubmit, id.CapReview},
		Automatic: true,
	},
	{StatusResponse, StatusCompliance}: {Requires: []id.Capability{id.CapConfirmCompliance}},
	{StatusCompliance, StatusClosed}:   {SeverityGated: true},
}

// LookupEdge returns the rule for from -> to.
func LookupEdge(from, to Status) (EdgeRule, bool) {
	rule, ok := transitionTable[edge{from, to}]
	return rule, ok
}

// Targets lists the statuses reachable from s, in lifecycle order.
func Targets(from Status) []Status {
	var out []Status
	for _, to := range allStatuses {
		if _, ok := transitionTable[edge{from, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}

// AuthorizeTransition checks the edge, the actor's capabilities, the
// severity gate and maker-checker. Every refusal is Forbidden and names the
// rule that failed.
func AuthorizeTransition(actor id.Actor, obs *Observation, target Status) error {
	if obs.ResolvedDuringFieldwork {
		return dErrors.New(dErrors.CodeForbidden,
			"observation was resolved during fieldwork and accepts no further transitions")
	}
	rule, ok := LookupEdge(obs.Status, target)
	if !ok {
		return dErrors.New(dErrors.CodeForbidden,
			fmt.Sprintf("transition %s -> %s is not part of the observation lifecycle", obs.Status, target))
	}

	if rule.SeverityGated {
		required := id.CapCloseStandard
		if obs.Severity.IsElevated() {
			required = id.CapCloseElevated
		}
		if !actor.Can(required) {
			return dErrors.New(dErrors.CodeForbidden,
				fmt.Sprintf("closing a %s severity observation requires role %s",
					obs.Severity, roleList(required)))
		}
	} else if !actor.CanAny(rule.Requires...) {
		return dErrors.New(dErrors.CodeForbidden,
			fmt.Sprintf("transition %s -> %s requires role %s",
				obs.Status, target, roleList(rule.Requires...)))
	}

	if rule.MakerChecker && actor.ID == obs.CreatedBy {
		return dErrors.New(dErrors.CodeForbidden,
			"maker-checker: the creator of an observation cannot approve it")
	}
	return nil
}

func roleList(caps ...id.Capability) string {
	roles := id.RolesGranting(caps...)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}
