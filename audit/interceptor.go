package audit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxRenderedLen = 100

var sensitiveMarkers = []string{"password", "token", "secret", "authorization", "credential"}

// Interceptor wraps declared operations, builds a draft audit record before
// the operation runs, completes it with the outcome after, and submits it to
// the pipeline. Its own bookkeeping never alters the wrapped operation's
// result or failure: every interceptor phase recovers its own panics.
type Interceptor struct {
	pipeline    *Pipeline
	serviceName string
	nowFunc     func() time.Time
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) InterceptorOption {
	return func(i *Interceptor) {
		i.nowFunc = now
	}
}

// NewInterceptor creates an Interceptor submitting to the given pipeline.
func NewInterceptor(pipeline *Pipeline, serviceName string, options ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		pipeline:    pipeline,
		serviceName: serviceName,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i
}

// Around runs fn wrapped with audit recording. The call context's Args/Named
// must be populated by the caller; Result and Err are filled in here. Exactly
// one record is submitted per invocation, whether fn returns normally or with
// an error, and fn's outcome is returned unchanged.
func (i *Interceptor) Around(d Descriptor, call *CallContext, meta *RequestMeta, caller *CallerIdentity, fn func() (any, error)) (any, error) {
	if call == nil {
		call = &CallContext{}
	}

	var draft *Record
	i.safely("before", func() {
		draft = i.buildDraft(d, call, meta)
	})

	result, err := fn()
	call.Result = result
	call.Err = err

	i.safely("after", func() {
		if draft == nil {
			// The before hook failed, possibly inside an extractor; rebuild a
			// minimal record without re-running extractors so the invocation
			// is still accounted for.
			draft = i.buildDraft(Descriptor{
				Action:      d.Action,
				Resource:    d.Resource,
				Description: d.Description,
			}, &CallContext{}, meta)
		}
		i.complete(draft, d, call)
		i.attributeActor(draft, d, caller)
		i.pipeline.Submit(draft)
	})

	return result, err
}

// safely runs an interceptor phase, converting any panic into a log line.
func (i *Interceptor) safely(phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("phase", phase).Interface("panic", r).Msg("Audit interceptor bookkeeping failed")
		}
	}()
	fn()
}

func (i *Interceptor) buildDraft(d Descriptor, call *CallContext, meta *RequestMeta) *Record {
	rec := &Record{
		ID:          uuid.New().String(),
		Action:      d.Action,
		Resource:    d.Resource,
		Description: renderTemplate(d.Description, call),
		InitiatedAt: i.nowFunc(),
		ServiceName: i.serviceName,
	}

	if d.ResourceID != nil {
		rec.ResourceID = d.ResourceID(call)
	}
	if d.ResourceIdentifier != nil {
		rec.ResourceIdentifier = d.ResourceIdentifier(call)
	}
	if d.CaptureParams {
		rec.ParametersJSON = redactedParamsJSON(call)
	}

	if meta != nil {
		rec.Endpoint = meta.Endpoint
		rec.Method = meta.Method
		rec.IPAddress = meta.IPAddress
		rec.SessionID = meta.SessionID
	}

	return rec
}

// complete mutates the draft with the call's outcome.
func (i *Interceptor) complete(rec *Record, d Descriptor, call *CallContext) {
	if call.Err != nil {
		rec.Status = StatusFailed
		rec.ErrorMessage = truncate(call.Err.Error(), maxRenderedLen)
		rec.Description = "FAILED: " + rec.Description
		return
	}

	rec.Status = StatusSuccess

	if d.IncludeResult {
		// Re-render with the result available: some operations (login) only
		// know the acting identity once the underlying call returns.
		rec.Description = renderTemplate(d.Description, call)
		if d.ResourceID != nil {
			if id := d.ResourceID(call); id != "" {
				rec.ResourceID = id
			}
		}
		if d.ResourceIdentifier != nil {
			if ident := d.ResourceIdentifier(call); ident != "" {
				rec.ResourceIdentifier = ident
			}
		}
		if provider, ok := call.Result.(ActorProvider); ok && provider != nil {
			email, name, role := provider.AuditActor()
			if email != "" {
				rec.ActorEmail = email
				rec.ActorName = name
				rec.ActorRole = role
			}
		}
	}
}

// attributeActor applies the identity-attribution precedence: an actor set by
// extractors or result extraction wins; otherwise non-login actions use the
// ambient caller identity or SYSTEM, and login-category actions fall back to
// ANONYMOUS / UNAUTHENTICATED.
func (i *Interceptor) attributeActor(rec *Record, d Descriptor, caller *CallerIdentity) {
	if rec.ActorEmail != "" {
		return
	}

	if !d.loginCategory() {
		if caller != nil && caller.Email != "" {
			rec.ActorEmail = caller.Email
			rec.ActorName = caller.Name
			rec.ActorRole = caller.Role
			return
		}
		rec.ActorEmail = ActorSystem
		return
	}

	rec.ActorEmail = ActorAnonymous
	rec.ActorRole = RoleUnauthenticated
}

// renderTemplate substitutes {0}, {1}, ... placeholders with stringified
// positional arguments. Unknown placeholders are left in place.
func renderTemplate(template string, call *CallContext) string {
	if template == "" || call == nil {
		return template
	}
	rendered := template
	for idx, arg := range call.Args {
		placeholder := "{" + strconv.Itoa(idx) + "}"
		if strings.Contains(rendered, placeholder) {
			rendered = strings.ReplaceAll(rendered, placeholder, stringify(arg))
		}
	}
	return rendered
}

func redactedParamsJSON(call *CallContext) string {
	if call == nil || len(call.Named) == 0 {
		return ""
	}

	redacted := make(map[string]string, len(call.Named))
	for name, value := range call.Named {
		if isSensitiveName(name) {
			redacted[name] = "[REDACTED]"
			continue
		}
		redacted[name] = stringify(value)
	}

	data, err := json.Marshal(redacted)
	if err != nil {
		return ""
	}
	return string(data)
}

func isSensitiveName(name string) bool {
	lowered := strings.ToLower(name)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func stringify(value any) string {
	if value == nil {
		return ""
	}
	return truncate(fmt.Sprintf("%v", value), maxRenderedLen)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
