package ir

const (
	// SchemaVersion is the version of the persisted relational layout,
	// stored as the database user_version.
	SchemaVersion = 1

	// CoralVersion is the library version reported by the CLI.
	CoralVersion = "0.1.0"
)
