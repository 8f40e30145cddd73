// Package email derives presentable names from email addresses for accounts
// registered without a profile.
package email

import (
	"strings"
	"unicode"
)

// nameSeparators are the characters treated as word boundaries in the local
// part of an address.
const nameSeparators = "._-+"

// DeriveNameFromEmail splits the local part of an address into a first and
// last name. "ana.souza@example.com" becomes ("Ana", "Souza"); addresses
// without separators fall back to "User" for the last name.
func DeriveNameFromEmail(address string) (first, last string) {
	local := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		local = address[:at]
	}

	words := strings.FieldsFunc(local, func(r rune) bool {
		return strings.ContainsRune(nameSeparators, r)
	})
	if len(words) == 0 {
		return "User", "User"
	}

	first = title(words[0])
	last = "User"
	if len(words) > 1 {
		last = title(words[len(words)-1])
	}
	return first, last
}

func title(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(word)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
