// Package errtrack provides goIdentity.ErrorReporter implementations: a
// Sentry reporter for production and a structured-log reporter.
//
// The Engine filters expected errors and redacts secret fields before a
// reporter sees them. The Sentry reporter additionally strips credential
// headers and cookies from every outgoing event.
package errtrack
