package lang

// Language identifies a supported source language.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	Go         Language = "go"
	Rust       Language = "rust"
	Java       Language = "java"
	CPP        Language = "cpp"
	CSharp     Language = "c-sharp"
	PHP        Language = "php"
	Lua        Language = "lua"
	Scala      Language = "scala"
	Kotlin     Language = "kotlin"
)

// AllLanguages returns every language with a registered spec.
func AllLanguages() []Language {
	return []Language{Python, JavaScript, TypeScript, TSX, Go, Rust, Java, CPP, CSharp, PHP, Lua, Scala, Kotlin}
}

// Spec describes how a language maps onto tree-sitter node kinds and how its
// qualified names are written. The definition and call processors depend only
// on this struct, never on a concrete language.
type Spec struct {
	Language       Language
	FileExtensions []string

	// Separator is the token the language writes between qualified-name
	// segments ("." for Python/Java, "/" for Go import paths, "::" for
	// Rust/C++). Names are normalized to the canonical separator before
	// they reach the registry.
	Separator string

	FunctionNodeTypes []string
	ClassNodeTypes    []string
	ModuleNodeTypes   []string
	CallNodeTypes     []string
	ImportNodeTypes   []string
	ImportFromTypes   []string

	// DecoratorNodeTypes lists decorator/annotation/attribute node kinds.
	// All of them are flattened into a plain string list on the entity.
	DecoratorNodeTypes []string

	// PackageIndicators are file names whose presence marks a directory
	// as a Package rather than a plain Folder.
	PackageIndicators []string
}

// registry maps file extensions to language specs.
var registry = map[string]*Spec{}

// Register adds a Spec to the extension registry. Called from per-language
// init functions.
func Register(spec *Spec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the Spec for a file extension (e.g. ".go"), or nil.
func ForExtension(ext string) *Spec {
	return registry[ext]
}

// ForLanguage returns the Spec for a language, or nil.
func ForLanguage(l Language) *Spec {
	for _, spec := range registry {
		if spec.Language == l {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}

// PackageIndicators returns the union of package indicator file names
// across all registered languages.
func PackageIndicators() map[string]bool {
	out := make(map[string]bool)
	for _, spec := range registry {
		for _, pi := range spec.PackageIndicators {
			out[pi] = true
		}
	}
	return out
}
