// Package hub runs one Worker per configured serial line.
//
// Each worker owns its line for the life of the process: it opens the line,
// runs a session on it, and retries after failures. A line that is absent
// when the hub starts is skipped for good.
//
// # Surrender
//
// A bridge in another session may take a line over. The worker's session
// then ends, and the worker waits in PhaseSurrendered, polling the shared
// serialport.Registry until the bridge hands the line back. It then reopens
// the line and starts a fresh session.
//
// # Status
//
// Hub.Status and Hub.Summary report per-worker phases and counters, and the
// hub logs them at the status interval.
package hub
