package plan

import "fmt"

// CompositionError indicates the composed schema itself is inconsistent
// with what planning requires (an entity with no base service, a field
// with no owner anywhere). It is fatal: planning cannot proceed.
type CompositionError struct {
	TypeName  string
	FieldName string
	Reason    string
}

func (e *CompositionError) Error() string {
	if e.FieldName != "" {
		return fmt.Sprintf("plan: composition error on %s.%s: %s", e.TypeName, e.FieldName, e.Reason)
	}
	return fmt.Sprintf("plan: composition error on %s: %s", e.TypeName, e.Reason)
}

// InvariantViolation indicates the planner's own internal bookkeeping
// broke an invariant it relies on (e.g. a dependent group created for a
// path that was never visited). It signals a planner defect, not a bad
// query or a bad schema, and callers should treat it as unrecoverable for
// the current request.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("plan: invariant violation (%s): %s", e.Invariant, e.Detail)
}

// UnsupportedSelection indicates a syntactically valid selection the
// planner does not know how to place (a field the composed schema does not
// define on the type it is selected against). It is reported back to the caller but does not
// abort planning of the rest of the operation.
type UnsupportedSelection struct {
	Path   string
	Reason string
}

func (e *UnsupportedSelection) Error() string {
	return fmt.Sprintf("plan: unsupported selection at %s: %s", e.Path, e.Reason)
}

// Diagnostics accumulates non-fatal UnsupportedSelection reports gathered
// while building a plan.
type Diagnostics struct {
	Unsupported []*UnsupportedSelection
}

func (d *Diagnostics) report(path string, reason string) {
	d.Unsupported = append(d.Unsupported, &UnsupportedSelection{Path: path, Reason: reason})
}

func (d *Diagnostics) HasReports() bool {
	return d != nil && len(d.Unsupported) > 0
}
