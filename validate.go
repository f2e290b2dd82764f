package diffset

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationReason identifies why an input field is invalid.
type ValidationReason string

// Validation error reasons.
const (
	ReasonRequired      ValidationReason = "required"
	ReasonTooLong       ValidationReason = "too_long"
	ReasonInvalidFormat ValidationReason = "invalid_format"
	ReasonInvalidDate   ValidationReason = "invalid_date"
	ReasonUnknownParent ValidationReason = "unknown_parent"
	ReasonInconsistent  ValidationReason = "inconsistent"
)

// ValidationError describes a single validation failure.
type ValidationError struct {
	Field  string           // Input field or record the error refers to
	Reason ValidationReason // Why the value is invalid
	Value  string           // Offending value, possibly truncated
	Limit  int              // Maximum length for too_long errors
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	switch e.Reason {
	case ReasonRequired:
		return fmt.Sprintf("%s: this field is required", e.Field)
	case ReasonTooLong:
		return fmt.Sprintf("%s: ensure this value has at most %d characters (it has %d)",
			e.Field, e.Limit, len(e.Value))
	case ReasonInvalidFormat:
		return fmt.Sprintf("%s: %q is not a valid value", e.Field, e.Value)
	case ReasonInvalidDate:
		return fmt.Sprintf("%s: this date must be in ISO 8601 format", e.Field)
	case ReasonUnknownParent:
		return fmt.Sprintf("%s: commit %q is not part of this diff", e.Field, e.Value)
	case ReasonInconsistent:
		return fmt.Sprintf("%s: %s", e.Field, e.Value)
	default:
		return fmt.Sprintf("%s: invalid value %q", e.Field, e.Value)
	}
}

// ValidationErrors collects every validation failure for an input.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any error refers to field.
func (errs ValidationErrors) Has(field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Validate checks every record of the DiffSet. Failures of all records are
// reported together.
func (d *DiffSet) Validate() error {
	var errs ValidationErrors
	for _, f := range d.Files {
		var verrs ValidationErrors
		if err := f.Validate(); errors.As(err, &verrs) {
			errs = append(errs, verrs...)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks that the hunk carries as many lines as its header declares.
func (h Hunk) Validate() error {
	orig, mod := h.Counts()
	if orig != h.OriginalLength || mod != h.ModifiedLength {
		return fmt.Errorf("%w: header declares -%d +%d, body has -%d +%d",
			ErrMalformedHunk, h.OriginalLength, h.ModifiedLength, orig, mod)
	}
	return nil
}

// Validate checks the record's invariants.
func (f FileDiff) Validate() error {
	var errs ValidationErrors
	path := f.Path()

	switch f.Kind {
	case Added:
		if f.OriginalRevision != PreCreation {
			errs = append(errs, ValidationError{Field: path, Reason: ReasonInconsistent,
				Value: "added file must have a PRE-CREATION original revision"})
		}
	case Deleted:
		if f.ModifiedRevision != Null {
			errs = append(errs, ValidationError{Field: path, Reason: ReasonInconsistent,
				Value: "deleted file must have a NULL modified revision"})
		}
	}
	if f.Kind != Added && f.OriginalPath == "" {
		errs = append(errs, ValidationError{Field: path, Reason: ReasonInconsistent, Value: "missing original path"})
	}
	if f.Kind != Deleted && f.ModifiedPath == "" {
		errs = append(errs, ValidationError{Field: path, Reason: ReasonInconsistent, Value: "missing modified path"})
	}
	if f.IsBinary && len(f.Hunks) > 0 {
		errs = append(errs, ValidationError{Field: path, Reason: ReasonInconsistent,
			Value: "binary file cannot carry text hunks"})
	}
	if f.Similarity != nil && (*f.Similarity < 0 || *f.Similarity > 100) {
		errs = append(errs, ValidationError{Field: path, Reason: ReasonInconsistent,
			Value: fmt.Sprintf("similarity index %d out of range", *f.Similarity)})
	}
	for i, h := range f.Hunks {
		if err := h.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: path, Reason: ReasonInconsistent,
				Value: fmt.Sprintf("hunk %d: %v", i+1, err)})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
