package collections

// FormID is an external engine object identifier. It is treated as an opaque
// key that is only stable after the post-load fix-up pass.
type FormID uint32

// FormZero is the reserved "no external object" id.
const FormZero FormID = 0

// FormResolver re-resolves a form id persisted by a previous session to the
// id of the same object in the current one. It reports false when the object
// no longer exists. Implementations must be safe for concurrent use.
type FormResolver interface {
	ResolveFormID(old FormID) (FormID, bool)
}

// FormResolverFunc adapts a function to FormResolver.
type FormResolverFunc func(old FormID) (FormID, bool)

// ResolveFormID calls f.
func (f FormResolverFunc) ResolveFormID(old FormID) (FormID, bool) {
	return f(old)
}

// IdentityResolver resolves every non-zero id to itself. It is the default
// for stores that are not attached to a host engine.
var IdentityResolver FormResolver = FormResolverFunc(func(old FormID) (FormID, bool) {
	return old, old != FormZero
})
