package utils

// IsAlphanumeric reports whether s is non-empty and made only of ASCII
// letters and digits.
func IsAlphanumeric(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) {
			return false
		}
	}

	return true
}

// ContainsOnly reports whether every byte of s is an ASCII letter, digit or
// one of the extra bytes.
func ContainsOnly(s string, extra string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlnum(c) {
			continue
		}

		found := false
		for j := 0; j < len(extra); j++ {
			if extra[j] == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
