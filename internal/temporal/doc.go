// Package temporal provides Temporal workflow client integration for the
// citation tracking service.
//
// This package handles workflow client initialization, workflow/activity
// registration, and worker lifecycle management.
//
// # Overview
//
// The temporal package provides:
//
//   - Client: Temporal client wrapper for starting/managing workflows
//   - Worker: Worker process for executing workflows and activities
//   - Workflow definitions for citation poll orchestration
//   - Activity implementations for the classification pipeline steps
//
// # Client Setup
//
// Create a Temporal client:
//
//	cfg := temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "citation-tracking",
//	    TaskQueue: "citation-tracking-tasks",
//	}
//
//	client, err := temporal.NewClient(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// # Starting Workflows
//
// Start the poll workflow for a tracked paper:
//
//	pollClient := temporal.NewPollWorkflowClient(client, cfg.TaskQueue)
//	workflowID, runID, err := pollClient.StartPollWorkflow(ctx, "neural-citation",
//	    workflows.CitationPollWorkflow, workflows.CitationPollInput{
//	        TrackedPaperID: trackedID,
//	        TrackedAlias:   "neural-citation",
//	    })
//
// Each tracked paper gets exactly one long-running workflow, identified by
// "citation-poll-<alias>". A second start fails with
// ErrWorkflowAlreadyStarted.
//
// # Signals and Queries
//
// Running workflows accept:
//
//   - SignalPollNow: run a discovery cycle immediately
//   - SignalStop: stop gracefully after the current cycle
//   - QueryStatus: retrieve the current cycle status
//
// # Worker Setup
//
// Create and start a worker:
//
//	manager := temporal.NewWorkerManager(client, temporal.DefaultWorkerConfig("citation-tracking-tasks"))
//	manager.RegisterWorkflow(workflows.CitationPollWorkflow)
//	manager.RegisterActivity(citationActivities.DiscoverCitations)
//
//	if err := manager.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// Workflows use standard Temporal error handling:
//
//	if temporal.IsWorkflowNotFound(err) {
//	    // Workflow doesn't exist or already completed
//	}
//
//	if temporal.IsWorkflowAlreadyStarted(err) {
//	    // Workflow with same ID is already running
//	}
//
// # Thread Safety
//
// The Temporal client is safe for concurrent use. Workers manage their
// own goroutines for activity execution.
package temporal
