package audit

// CallContext carries the named and positional arguments of an audited call,
// and once the call returns, its result and error. Extractors evaluate
// against it instead of a string expression language: resource identification
// is an explicit, compile-time-checked closure.
type CallContext struct {
	Args   []any
	Named  map[string]any
	Result any
	Err    error
}

// Arg returns the positional argument at index i, or nil when out of range.
func (c *CallContext) Arg(i int) any {
	if c == nil || i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Extractor derives a resource id or identifier from the call context. It is
// evaluated once before the call (result not yet available) and, when the
// descriptor requests result inclusion, again after a successful return.
type Extractor func(*CallContext) string

// ActorProvider is implemented by results that carry the acting identity, such
// as a login payload. When an audited operation returns an ActorProvider and
// the descriptor includes the result, the identity populates the record's
// actor fields.
type ActorProvider interface {
	AuditActor() (email, name, role string)
}

// Descriptor declares an operation auditable. It replaces annotation- and
// expression-driven metadata with explicit fields and extractor closures.
type Descriptor struct {
	Action   ActionType
	Resource ResourceType

	// Description is a template whose positional placeholders ({0}, {1}, ...)
	// are substituted with stringified call arguments, truncated past
	// maxRenderedLen characters.
	Description string

	ResourceID         Extractor
	ResourceIdentifier Extractor

	// CaptureParams records the call's named parameters as JSON, with
	// sensitive-looking names redacted.
	CaptureParams bool

	// IncludeResult re-evaluates the extractors and description after a
	// successful return, with the result available in the call context.
	IncludeResult bool
}

// loginCategory reports whether the action belongs to the login category for
// identity-attribution purposes: login and identity-verification actions, and
// anything acting on the authentication resource.
func (d Descriptor) loginCategory() bool {
	switch d.Action {
	case ActionLogin, ActionIdentityVerification:
		return true
	}
	return d.Resource == ResourceAuthentication
}

// RequestMeta describes the inbound request on whose behalf an audited
// operation runs.
type RequestMeta struct {
	Endpoint  string
	Method    string
	IPAddress string
	SessionID string
}

// CallerIdentity is the ambient caller identity, passed explicitly rather
// than read from implicit global state.
type CallerIdentity struct {
	Email string
	Name  string
	Role  string
}
