// Package sandbox compiles and runs submitted programs.
//
// A submission is routed to one of two backends chosen at start:
// LocalExecutor runs it directly on the host, DockerExecutor runs it in a
// locked-down container. Both write the code into a per-execution
// Workspace, consult the LanguageTable for file names and compile/run
// commands, and spawn processes through a CommandRunner (the Supervisor in
// production) that merges output, feeds stdin and enforces the timeout.
//
// The Router in front of the backends turns every outcome into an
// ExecutionResult; callers never see a raw error.
//
// Usage:
//
//	languages := sandbox.NewLanguageTableFromConfig(cfg)
//	router := sandbox.NewRouterFromConfig(logger, cfg, languages)
//	result := router.Execute(ctx, sandbox.ExecutionRequest{
//	    Language: "python",
//	    Code:     "print('Hello, World!')",
//	})
package sandbox
