package engine

import "taskroute/internal/model"

// Eligible reports whether agent a may perform task t: the task's skill
// must be in the agent's skill set and the task's pincode in the agent's
// allowed locations. openLocations names the policy for an empty
// allowed-locations set: "none" (default) means eligible nowhere, "any"
// means no territory restriction.
func Eligible(t model.Task, a model.Agent, openLocations string) bool {
	if !hasSkill(a, t.Skill) {
		return false
	}
	if len(a.AllowedLocations) == 0 {
		return openLocations == model.OpenLocationsAny
	}
	for _, p := range a.AllowedLocations {
		if p == t.Pincode {
			return true
		}
	}
	return false
}

func hasSkill(a model.Agent, skill string) bool {
	for _, s := range a.Skills {
		if s == skill {
			return true
		}
	}
	return false
}
