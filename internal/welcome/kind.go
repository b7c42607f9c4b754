package welcome

// Kind is the member transition a configuration or template applies to.
// Join and leave keep fully disjoint settings and template namespaces.
type Kind string

const (
	KindJoin  Kind = "join"
	KindLeave Kind = "leave"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindJoin:
		return KindJoin, nil
	case KindLeave:
		return KindLeave, nil
	default:
		return "", ValidationError{Reason: "unknown event kind: " + s}
	}
}
