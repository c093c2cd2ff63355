// Package core provides the import logic for loading tabular datasets into
// a graph store.
//
// The package holds the domain logic independent of the CLI and the status
// server. It can be driven by the cli package, by the status server, or by
// tests with the in-memory store.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Datasets: Registered via the registry, each dataset lists its entity
//     kinds in dependency order plus the relationships between them.
//   - Loader: Reads one kind's source file, validates each row and yields
//     batches of node records.
//   - Pipeline: Imports kinds in order, one checkpointed batch at a time.
//   - RelationshipBuilder: Links imported nodes once both endpoints exist.
//
// # Dataset Registry
//
// Datasets are registered at init time using [Register]:
//
//	core.Register(core.Dataset{
//	    Name: "transit",
//	    Kinds: []core.KindSpec{
//	        {Name: "agency", Label: "Agency", File: "agency.txt",
//	            Key: []string{"agency_id"},
//	            Fields: []core.FieldSpec{
//	                {Name: "agency_id", Type: core.FieldText},
//	                {Name: "agency_name", Type: core.FieldText, Required: true},
//	            }},
//	    },
//	})
//
// # Resumable Import
//
// Every kind has a checkpoint entry. A batch is recorded only after the
// store accepted it, so an interrupted run resumes at the first batch that
// was not committed:
//
//  1. The loader checks that the file exists and its header has every key
//     and required column
//  2. Rows are counted to fix the batch total
//  3. Batches before the checkpoint are skipped without transforming them
//  4. Each remaining batch is upserted and then recorded
//
// Upserts are idempotent, so replaying the batch that was in flight when a
// run died is harmless.
//
// # Error Handling
//
// Technical errors are mapped to operator-facing messages using [MapError].
// Each message carries a code (CFG, CKP, BAT, VAL, SRC, STO) that the CLI
// prints next to the action to take.
package core
