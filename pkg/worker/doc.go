/*
Package worker adapts external fixer programs to the orchestrator's
Worker and TestRunner interfaces.

Two transports are supported. CommandWorker runs a local process and
speaks JSON over stdin/stdout; HTTPWorker posts the same JSON document
to a remote fixer service. Both are cancellable through the caller's
context, which is how the orchestrator enforces per-attempt timeouts.

The wire format is a single request document:

	{
	  "error_context": {"kind": "...", "message": "...", ...},
	  "affected_files": ["..."]
	}

and a single response document:

	{
	  "success": true,
	  "confidence": 0.8,
	  "modifications": [{"type": "edit", "path": "...", "content": "..."}],
	  "error": ""
	}

CommandRunner validates fixes the same way: it runs a configured test
command and parses {"passed", "failed", "total"} from stdout.
*/
package worker
