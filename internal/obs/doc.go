// Package obs wires process-wide logging: logrus output to stdout plus a
// rotating file, and an in-memory ring of recent entries for the staff API.
// Metrics live in the otel subpackage.
package obs
