// Package app composes the hiring pipeline services into a running
// application.
//
// The package sits above the domain services and is responsible for wiring,
// not business rules. Transition validation, counter maintenance and metric
// aggregation live in internal/app/services/; this package builds those
// services against a set of stores, connects them through the event bus and
// manages their start/stop order.
//
//	internal/app/
//	├── application.go   # Application struct, wiring, lifecycle
//	├── domain/          # Pure domain models (application, job, candidate, ...)
//	├── storage/         # Store interfaces, memory, postgres and redis backends
//	├── events/          # In-process event bus with bounded retention
//	├── feed/            # Live activity feed fan-out
//	├── services/        # Transitions, counters, stats, jobs, accounts, health
//	├── httpapi/         # REST and websocket surface
//	├── metrics/         # Prometheus instrumentation
//	└── system/          # Service lifecycle manager
//
// Stores default to the in-memory implementation, so an Application built
// from zero values is fully functional for tests and local development.
package app
