// Package testcase defines the values that flow between the judging stages:
// typed test cases, per-test verdicts and the submission verdict lattice.
package testcase

import (
	"strings"

	"judge-engine/internal/judgeerr"
)

// TypeTag names the declared type of a function parameter or return value.
type TypeTag string

const (
	Int      TypeTag = "int"
	Long     TypeTag = "long"
	Double   TypeTag = "double"
	Bool     TypeTag = "bool"
	String   TypeTag = "string"
	Char     TypeTag = "char"
	TreeNode TypeTag = "TreeNode*"
	ListNode TypeTag = "ListNode*"
)

const (
	vectorPrefix = "vector<"
	vectorSuffix = ">"
)

// Vector returns the vector<T> tag for the given element tag.
func Vector(element TypeTag) TypeTag {
	return TypeTag(vectorPrefix + string(element) + vectorSuffix)
}

// IsVector reports whether the tag is a vector<T>.
func (t TypeTag) IsVector() bool {
	return strings.HasPrefix(string(t), vectorPrefix) && strings.HasSuffix(string(t), vectorSuffix)
}

// Element returns T for vector<T>, or "" for any other tag.
func (t TypeTag) Element() TypeTag {
	if !t.IsVector() {
		return ""
	}

	return TypeTag(strings.TrimSpace(string(t)[len(vectorPrefix) : len(t)-len(vectorSuffix)]))
}

// IsPointer reports whether the tag is one of the heap pointer structures.
func (t TypeTag) IsPointer() bool {
	return t == TreeNode || t == ListNode
}

// IsArray reports whether values of the tag are encoded as JSON arrays.
func (t TypeTag) IsArray() bool {
	return t.IsVector() || t.IsPointer()
}

// CppType is the C++ spelling used when declaring a variable of this type.
func (t TypeTag) CppType() string {
	switch {
	case t == Long:
		return "long long"
	case t.IsVector():
		return "vector<" + t.Element().CppType() + ">"
	default:
		return string(t)
	}
}

// ParseTypeTag normalises the accepted spellings of a type into a TypeTag.
// Array spellings (int[], int[][]) and the long long / std:: variants are
// folded into their canonical form. Anything else is an UnsupportedTypeError.
func ParseTypeTag(raw string) (TypeTag, error) {
	tag := strings.Join(strings.Fields(raw), " ")
	tag = strings.ReplaceAll(tag, "std::", "")
	tag = strings.ReplaceAll(tag, " *", "*")
	tag = strings.ReplaceAll(tag, "< ", "<")
	tag = strings.ReplaceAll(tag, " >", ">")

	if strings.HasSuffix(tag, "[]") {
		element, err := ParseTypeTag(strings.TrimSuffix(tag, "[]"))

		if err != nil {
			return "", &judgeerr.UnsupportedTypeError{Type: raw}
		}

		return Vector(element), nil
	}

	switch TypeTag(tag) {
	case Int, Double, Bool, String, Char, TreeNode, ListNode:
		return TypeTag(tag), nil
	case "long", "long long":
		return Long, nil
	case "float":
		return Double, nil
	}

	if TypeTag(tag).IsVector() {
		element, err := ParseTypeTag(string(TypeTag(tag).Element()))

		if err != nil || element.IsPointer() {
			return "", &judgeerr.UnsupportedTypeError{Type: raw}
		}

		return Vector(element), nil
	}

	return "", &judgeerr.UnsupportedTypeError{Type: raw}
}
