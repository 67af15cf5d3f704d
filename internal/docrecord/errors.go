package docrecord

import "errors"

var (
	errEmptyID      = errors.New("docrecord: id must not be empty")
	errEmptySummary = errors.New("docrecord: detailed_summary must not be empty")
	errDimMismatch  = errors.New("docrecord: vector_embedding length does not match configured dimension")
)
