// Package harness runs conformance scenarios against in-memory catalogs.
//
// A scenario seeds a source and a target catalog, runs a sequence of
// reconcile, migrate and absent steps, and checks what each step did. The
// run IDs, issue IDs and timestamps are deterministic, so the records a
// scenario produces can be compared byte for byte against a golden file.
//
// # Scenario Format
//
//	name: orders-lifecycle
//	description: "What this scenario validates"
//	run_id: orders            # optional; defaults to name
//	target:                   # seeded before the first step, IDs t-1, t-2, ...
//	  - type: application_domain
//	    name: legacy
//	source:                   # IDs s-1, s-2, ...
//	  - type: application_domain
//	    name: orders
//	    settings: { description: Orders }
//	steps:
//	  - name: create
//	    kind: reconcile         # reconcile | migrate | absent
//	    entities:               # the desired-state YAML entity list
//	      - type: application_domain
//	        name: orders
//	        settings: { description: A }
//	    expect:
//	      outcome: applied
//	      mutations: 1
//	assertions:
//	  - type: trace_contains
//	    step: create
//	    action: CREATE
//	    entity: application_domain
//	    name: orders
//	  - type: final_state
//	    entity: application_domain
//	    name: orders
//	    expect: { description: A }
//	principles:
//	  - idempotent
//
// Step i of a scenario runs with run ID "<run_id>-<i+1>". Migrate and
// absent steps take their options from the default config, overridden by
// the step's prefix, strategy, dry_run, fail_fast and absent_run_id.
//
// # Assertion Types
//
//   - trace_contains: a record with the given action, entity type and name exists
//   - trace_order: records matching each entry appear in that order
//   - trace_count: exactly count records match
//   - final_state: the target entity exists with the expected settings, or is absent
//
// Trace assertions consider every step unless step names one.
//
// # Principles
//
//   - idempotent: the last step, run again with a fresh run ID, mutates
//     nothing and fails nothing
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/orders-lifecycle.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
