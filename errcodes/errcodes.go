// Package errcodes maps the numeric error codes reported by a CrateDB node to
// short human-readable descriptions.
package errcodes

// Server error codes reported in the "error.code" field of a response body.
const (
	InvalidSyntax         = 4000
	InvalidAnalyzer       = 4001
	InvalidTableName      = 4002
	FieldValidationFailed = 4003
	UnsupportedFeature    = 4004
	AlterTableAliased     = 4005
	AmbiguousColumnAlias  = 4006
	UnknownTable          = 4041
	UnknownAnalyzer       = 4042
	UnknownColumn         = 4043
	UnknownType           = 4044
	UnknownSchema         = 4045
	UnknownPartition      = 4046
	DuplicatePrimaryKey   = 4091
	VersionConflict       = 4092
	TableAlreadyExists    = 4093
	AliasSchemaMismatch   = 4094
	UnhandledServerError  = 5000
	TaskExecutionFailed   = 5001
	ShardsNotAvailable    = 5002
	QueryFailedOnShards   = 5003
	QueryKilled           = 5030
)

var descriptions = map[int]string{
	InvalidSyntax:         "The statement contains an invalid syntax or unsupported SQL statement",
	InvalidAnalyzer:       "The statement contains an invalid analyzer definition.",
	InvalidTableName:      "The name of the table is invalid.",
	FieldValidationFailed: "Field type validation failed",
	UnsupportedFeature:    "Possible feature not supported (yet)",
	AlterTableAliased:     "Alter table using a table alias is not supported.",
	AmbiguousColumnAlias:  "The used column alias is ambiguous.",
	UnknownTable:          "Unknown table.",
	UnknownAnalyzer:       "Unknown analyzer.",
	UnknownColumn:         "Unknown column.",
	UnknownType:           "Unknown type.",
	UnknownSchema:         "Unknown schema.",
	UnknownPartition:      "Unknown Partition.",
	DuplicatePrimaryKey:   "A document with the same primary key exists already.",
	VersionConflict:       "A VersionConflict. Might be thrown if an attempt was made to update the same document concurrently.",
	TableAlreadyExists:    "A table with the same name exists already.",
	AliasSchemaMismatch:   "The used table alias contains tables with different schema.",
	UnhandledServerError:  "Unhandled server error.",
	TaskExecutionFailed:   "The execution of one or more tasks failed.",
	ShardsNotAvailable:    "one or more shards are not available.",
	QueryFailedOnShards:   "the query failed on one or more shards",
	QueryKilled:           "the query was killed by a kill statement",
}

// Description returns the catalog text for code, or "" when the code is not
// in the catalog.
func Description(code int) string {
	return descriptions[code]
}

// Known reports whether code has a catalog entry.
func Known(code int) bool {
	_, ok := descriptions[code]
	return ok
}
