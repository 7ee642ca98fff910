package naming

import (
	"strconv"
	"strings"
)

// A Name is a hierarchical name made of dot-separated tokens, for example
// "Chip.Core[2].Fetch".
type Name struct {
	Tokens []NameToken
}

// NameToken is one element of a Name, with optional indices.
type NameToken struct {
	ElemName string
	Index    []int
}

// ParseName splits a name string into its tokens. It panics if an index is
// not an integer or if brackets do not match.
func ParseName(sname string) Name {
	parts := strings.Split(sname, ".")
	name := Name{Tokens: make([]NameToken, len(parts))}

	for i, part := range parts {
		name.Tokens[i] = parseNameToken(part)
	}

	return name
}

func parseNameToken(token string) NameToken {
	bracketsMustMatch(token)

	segments := strings.Split(token, "[")
	indices := make([]int, 0, len(segments)-1)

	for _, seg := range segments[1:] {
		index, err := strconv.Atoi(strings.TrimSuffix(seg, "]"))
		if err != nil {
			panic("name index must be an integer")
		}

		indices = append(indices, index)
	}

	return NameToken{ElemName: segments[0], Index: indices}
}

func bracketsMustMatch(token string) {
	depth := 0

	for _, c := range token {
		switch c {
		case '[':
			depth++
			if depth > 1 {
				panic("name brackets must not nest")
			}
		case ']':
			depth--
			if depth < 0 {
				panic("name brackets must match")
			}
		}
	}

	if depth != 0 {
		panic("name brackets must match")
	}
}

// NameMustBeValid panics if the name does not follow the naming convention:
//  1. Tokens are separated by single dots and none of them is empty.
//  2. Each token starts with a capital letter (CamelCase).
//  3. Tokens never contain underscores, dashes or quotes.
//  4. Elements of a series use square-bracket indices, e.g. "Core[3]".
func NameMustBeValid(name string) {
	defer func() {
		if r := recover(); r != nil {
			panic("name " + name + " is not valid: " + r.(string))
		}
	}()

	for _, token := range ParseName(name).Tokens {
		tokenMustBeValid(token)
	}
}

// ElementMustBeValid panics unless elem is a single valid name token. Object
// names registered in a Hierarchy are elements; the Hierarchy builds the
// dotted names.
func ElementMustBeValid(elem string) {
	if strings.Contains(elem, ".") {
		panic("element name " + elem + " must not contain dots")
	}

	NameMustBeValid(elem)
}

func tokenMustBeValid(token NameToken) {
	if token.ElemName == "" {
		panic("name element must not be empty")
	}

	for _, c := range []string{"_", "\"", "'", "-", " "} {
		if strings.Contains(token.ElemName, c) {
			panic("name element must not contain " + c)
		}
	}

	if token.ElemName[0] < 'A' || token.ElemName[0] > 'Z' {
		panic("name element must start with a capital letter")
	}
}

// BuildName joins a parent name and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildNameWithIndex joins a parent name and an indexed element name.
func BuildNameWithIndex(parentName, elementName string, index int) string {
	return BuildName(parentName, elementName+"["+strconv.Itoa(index)+"]")
}
