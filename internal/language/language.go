// Package language holds the fixed set of labels a translation can use as
// its source or target.
package language

// NaturalLanguage is the label for plain prose input or output.
const NaturalLanguage = "Natural Language"

var labels = []string{
	"Assembly Language",
	"Bash",
	"C",
	"C#",
	"C++",
	"Clojure",
	"COBOL",
	"CoffeeScript",
	"Crystal",
	"CSS",
	"Dart",
	"Elixir",
	"Fortran",
	"Go",
	"Groovy",
	"Haskell",
	"HTML",
	"Java",
	"JavaScript",
	"JSX",
	"Julia",
	"Kotlin",
	"Lisp",
	"Lua",
	"Matlab",
	NaturalLanguage,
	"NoSQL",
	"Objective-C",
	"Pascal",
	"Perl",
	"PHP",
	"PL/I",
	"Powershell",
	"Python",
	"R",
	"Racket",
	"Ruby",
	"Rust",
	"SAS",
	"Scala",
	"SQL",
	"Swift",
	"SwiftUI",
	"TSX",
	"TypeScript",
	"Visual Basic .NET",
	"Vue",
}

var recognized = func() map[string]struct{} {
	m := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		m[l] = struct{}{}
	}
	return m
}()

// All returns the recognized labels in display order.
func All() []string {
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

// IsRecognized reports whether label is one of the fixed options. Matching is
// exact, the same way a select widget compares option values.
func IsRecognized(label string) bool {
	_, ok := recognized[label]
	return ok
}
