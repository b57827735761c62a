// Package pipeline runs the nudge engine end to end.
//
// Runner.RunOnce collects a trainer's client facts, scores them, upserts the
// latest risk profiles, selects the clients worth nudging and writes one
// ScheduledCampaign per selected client. Dispatcher.DispatchDue later sends
// the campaigns that have come due and records the outcome.
//
// The package depends on repository interfaces defined here; Postgres
// implementations live in repository/postgres/.
package pipeline
