package storage

// ValidateName reports whether name is made only of ASCII letters, digits,
// underscore and hyphen. The empty string is valid: callers that cannot
// accept it should use a NamePolicy with RequireNonEmpty set.
func ValidateName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

// NamePolicy gates the empty-name case of ValidateName.
type NamePolicy struct {
	// RequireNonEmpty rejects the empty name. Off by default so that the
	// empty name stays valid, matching ValidateName.
	RequireNonEmpty bool
}

// Validate applies ValidateName plus the policy's extra checks.
func (p NamePolicy) Validate(name string) bool {
	if p.RequireNonEmpty && name == "" {
		return false
	}
	return ValidateName(name)
}
