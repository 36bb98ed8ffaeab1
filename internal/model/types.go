package model

import (
	"encoding/json"
	"fmt"
	"strconv"

	"taskroute/internal/geo"
)

// Core domain types shared by the engine, the store, and the API layer.

// Key is an identifier or pincode. Source data uses numbers and strings
// interchangeably, so both JSON forms decode to the same value.
type Key string

func (k *Key) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = Key(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("key: expected string or number: %w", err)
	}
	*k = Key(n.String())
	return nil
}

func (k Key) String() string { return string(k) }

// KeyOfInt is a convenience for building test fixtures and decoding
// legacy integer identifiers.
func KeyOfInt(n int) Key { return Key(strconv.Itoa(n)) }

// Task types.
const (
	TaskSingle         = "single"
	TaskPickupDelivery = "pickup_delivery"
)

// Task is one unit of work at a geographic point. A pickup_delivery task
// has two points visited in order by the same agent.
type Task struct {
	ID             Key        `json:"id"`
	Type           string     `json:"type,omitempty"` // single (default) or pickup_delivery
	Skill          string     `json:"skill"`
	Location       *geo.Point `json:"location,omitempty"`
	PickupLocation *geo.Point `json:"pickup_location,omitempty"`
	DropLocation   *geo.Point `json:"drop_location,omitempty"`
	Pincode        Key        `json:"pincode"`
	Duration       int        `json:"duration"` // minutes
}

// Kind returns the normalized task type.
func (t Task) Kind() string {
	if t.Type == "" {
		return TaskSingle
	}
	return t.Type
}

// Agent is a worker with a skill set, a time budget and a territory.
type Agent struct {
	ID               Key       `json:"id"`
	Skills           []string  `json:"skills"`
	Location         geo.Point `json:"location"`
	Availability     int       `json:"availability"` // minutes
	AllowedLocations []Key     `json:"allowedLocations"`
}

// Plan modes.
const (
	ModeAssignment = "assignment"
	ModeRouting    = "routing"
)

// Empty-allowedLocations policies. "none" treats an empty set as
// eligible nowhere; "any" lifts the territory restriction entirely.
const (
	OpenLocationsNone = "none"
	OpenLocationsAny  = "any"
)

// PlanRequest is the body of POST /v1/plans.
type PlanRequest struct {
	TenantID      string  `json:"tenantId,omitempty"`
	Mode          string  `json:"mode,omitempty"`      // assignment (default) or routing
	Algorithm     string  `json:"algorithm,omitempty"` // greedy (default) or anneal
	TimeBudgetMs  int     `json:"timeBudgetMs,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
	OpenLocations string  `json:"openLocations,omitempty"` // none (default) or any
	Tasks         []Task  `json:"tasks"`
	Agents        []Agent `json:"agents"`
}

// Assignment is one agent's share of a plan: tasks in visiting order,
// the distance walked, and where the agent ends up.
type Assignment struct {
	AgentID       Key       `json:"agent_id"`
	Tasks         []Key     `json:"tasks"`
	TotalDistance float64   `json:"total_distance"`
	LastLocation  geo.Point `json:"last_location"`
}

// PlanReport is the decoded result of one optimization run. Agents with
// zero assigned tasks are omitted from AgentAssignments.
type PlanReport struct {
	TotalDistanceCovered float64      `json:"total_distance_covered"`
	AgentAssignments     []Assignment `json:"agent_assignments"`
	UnassignedTasks      []Key        `json:"unassigned_tasks"`
}

// Plan statuses.
const (
	PlanSolved   = "solved"
	PlanTimedOut = "timed_out"
)

// Plan is a stored optimization run.
type Plan struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	Mode      string     `json:"mode"`
	Algorithm string     `json:"algorithm"`
	Status    string     `json:"status"`
	CreatedAt string     `json:"createdAt,omitempty"`
	Report    PlanReport `json:"report"`
}

// SubscriptionRequest registers a webhook endpoint for plan events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
