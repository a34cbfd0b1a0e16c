// Package notify implements the alert.Action channels.
//
//	console   lipgloss-styled lines on stdout
//	slack     Slack incoming webhook
//	teams     Microsoft Teams MessageCard webhook
//	webhook   generic JSON POST of an Event
//	email     SendGrid plain-text mail
//	nats      JSON Event published on a subject
//	pglog     row appended to the ratemon_alerts Postgres table
//
// Build turns the configured action list into a name -> Action map. Every
// Event carries a fresh UUID so downstream consumers can de-duplicate.
package notify
