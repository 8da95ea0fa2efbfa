package lang

func init() {
	Register(&Spec{
		Language:       CPP,
		FileExtensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx", ".h"},
		Separator:      "::",
		FunctionNodeTypes: []string{
			"function_definition",
		},
		ClassNodeTypes: []string{
			"class_specifier",
			"struct_specifier",
			"enum_specifier",
		},
		ModuleNodeTypes:   []string{"translation_unit", "namespace_definition"},
		CallNodeTypes:     []string{"call_expression"},
		ImportNodeTypes:   []string{"preproc_include"},
		ImportFromTypes:   []string{"preproc_include"},
		PackageIndicators: []string{"CMakeLists.txt", "Makefile"},
	})
}
