package main

// globalFlags are shared by every subcommand.
type globalFlags struct {
	Home   string // state directory override
	Server string // peer routing for process-affecting verbs
}

// startFlags carries the start command's options.
type startFlags struct {
	Name      string
	Watch     string
	MaxMemory string
	Workers   int
	PortRange string
	Path      string
	Env       []string
}

// adjustFlags carries the adjust command's options.
type adjustFlags struct {
	Command string
	Name    string
}

// logsFlags carries the logs command's options.
type logsFlags struct {
	Lines      int
	ErrorsOnly bool
}

// listFlags carries the list command's options.
type listFlags struct {
	Format string // raw, json, default
}
