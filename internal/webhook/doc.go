// Package webhook classifies voice-agent webhook events and dispatches
// function calls to content generation.
//
// Every event is decoded once by ParseEvent into a closed set of EventTypes.
// Only function-call events lead to further work: the function name is looked
// up in a FunctionTable built at startup, and the matching handler runs on a
// bounded Queue so a slow backend never delays the acknowledgment sent back to
// the agent platform.
//
// Router.Route never returns an error. Malformed payloads, unknown function
// names, a full queue, and failed generation jobs are logged and counted, and
// the HTTP handler acknowledges the event regardless.
package webhook
