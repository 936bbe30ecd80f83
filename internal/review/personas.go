package review

import (
	"slices"
	"strings"
)

// Persona is a built-in reviewer role. Giving judges different personas
// keeps a council from reviewing the same change through the same lens.
type Persona struct {
	Name        string
	Description string
	Focus       string
}

var personas = map[string]Persona{
	"general": {
		Name:        "general",
		Description: "balanced senior reviewer",
		Focus:       "Weigh correctness, security, performance, and maintainability together and judge whether the change is ready to merge.",
	},
	"correctness": {
		Name:        "correctness",
		Description: "logic and edge-case hunter",
		Focus:       "Look for logic errors, off-by-one mistakes, unhandled errors, nil dereferences, broken invariants, and edge cases the change misses.",
	},
	"security": {
		Name:        "security",
		Description: "application security reviewer",
		Focus:       "Look for injection, unsafe deserialization, secrets in code, missing authorization, path traversal, and unsafe handling of untrusted input.",
	},
	"performance": {
		Name:        "performance",
		Description: "performance and resource reviewer",
		Focus:       "Look for needless allocations, quadratic loops, blocking calls on hot paths, goroutine or connection leaks, and unbounded growth.",
	},
	"maintainability": {
		Name:        "maintainability",
		Description: "design and readability reviewer",
		Focus:       "Look for unclear naming, tangled responsibilities, duplicated logic, leaky abstractions, and code that will be hard to change safely.",
	},
	"testing": {
		Name:        "testing",
		Description: "test coverage reviewer",
		Focus:       "Check that the change is covered by tests, that tests assert behavior rather than implementation, and that failure paths are exercised.",
	},
}

// DefaultPersona is used when a judge names none.
const DefaultPersona = "general"

// LookupPersona returns the named persona. An empty name selects the default.
func LookupPersona(name string) (Persona, bool) {
	if name == "" {
		name = DefaultPersona
	}
	p, ok := personas[strings.ToLower(name)]
	return p, ok
}

// PersonaNames lists the built-in personas in sorted order.
func PersonaNames() []string {
	names := make([]string, 0, len(personas))
	for n := range personas {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
