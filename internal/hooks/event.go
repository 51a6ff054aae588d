package hooks

import "time"

// EventType tags the kind of control-plane event carried by an Event.
// Consumers switch on Type rather than on the event's concrete payload
// shape, keeping the bus usable across components that know nothing of
// each other's internal types.
type EventType string

const (
	// EventCircuitStateChanged fires on every Circuit Breaker Registry
	// state transition (§4.4 Notification).
	EventCircuitStateChanged EventType = "circuit.state_changed"
	// EventStrategyBypassed fires when a strategy enters bypass (§4.3).
	EventStrategyBypassed EventType = "strategy.bypassed"
	// EventStrategySelected fires on every successful routing selection.
	EventStrategySelected EventType = "strategy.selected"
	// EventQuotaStatusChanged fires when a provider's quota classification
	// changes (§4.2 Classification rules).
	EventQuotaStatusChanged EventType = "quota.status_changed"
	// EventPluginTransition fires on every Plugin Lifecycle Supervisor
	// evaluation that changes a plugin's status, reason code or quarantine
	// bit, and on the first evaluation of a plugin (§4.5).
	EventPluginTransition EventType = "plugin.transition"
	// EventWorkflowStepCompleted fires when a workflow step reaches a
	// terminal status.
	EventWorkflowStepCompleted EventType = "workflow.step_completed"
	// EventOutcomeRecorded fires when the Integration layer records a task
	// outcome for the learning channel.
	EventOutcomeRecorded EventType = "integration.outcome_recorded"
)

// Event is the single payload type published on the Bus. Fields other than
// Type and At are optional and populated by the publishing component;
// subscribers that care about a specific EventType know which fields to
// expect.
type Event struct {
	Type EventType
	At   time.Time

	// Name identifies the resource the event concerns (circuit name,
	// strategy name, provider id, plugin name, workflow run id).
	Name string

	// From and To describe a state transition, when applicable (breaker
	// state names, plugin status names).
	From string
	To   string

	// Reason carries a free-text or tagged explanation (breaker
	// transition cause, plugin reason_code, strategy bypass reason).
	Reason string

	// Payload carries an event-specific structured value (e.g. a
	// RoutingDecision, a QuotaSnapshot, a PluginRecord) for subscribers
	// that need more than the common fields above.
	Payload any
}
