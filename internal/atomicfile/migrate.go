package atomicfile

// Versioned is embedded by any JSON document that carries a schema version.
// A missing SchemaVersion field decodes as the zero value "", which
// ResolveVersion maps to "1.0.0".
type Versioned struct {
	SchemaVersion string `json:"schema_version"`
}

// LatestSchemaVersion is the schema version the JSON stores write. The
// helpers in this file only compare version strings: no loader in the
// module calls them, and no field renames or other document migrations
// are applied on load.
const LatestSchemaVersion = "1.1.0"

// AssumedVersion is substituted when a document's schema_version field is
// absent, matching legacy documents written before versioning existed.
const AssumedVersion = "1.0.0"

// ResolveVersion returns raw if non-empty, otherwise AssumedVersion.
func ResolveVersion(raw string) string {
	if raw == "" {
		return AssumedVersion
	}
	return raw
}

// NeedsMigration reports whether a document at the given version must be
// migrated forward before use.
func NeedsMigration(version string) bool {
	return ResolveVersion(version) != LatestSchemaVersion
}
