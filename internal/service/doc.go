// Package service runs the background-removal worker process.
//
// # Lifecycle
//
// A ServiceState moves through four states:
//
//	starting -> warming -> serving -> stopping
//
// Listen binds the loopback port before any model is loaded, so launching
// clients can already see the service as reachable while Warm loads the
// models. Connections made during warm-up wait in the OS listen backlog until
// Serve starts accepting.
//
// # Request Handling
//
// Serve accepts one connection per free worker slot and hands it to a fixed
// worker pool. Each connection carries exactly one request frame and one
// response frame (see package wire). Any failure closes the connection without
// a response; the process keeps serving.
//
// # Filesystem Artifacts
//
// The service writes its PID to service.pid while it runs. When warm-up fails
// it records the reason in service_error.txt, releases the port and returns
// an error so the process can exit.
package service
