package lang

func init() {
	Register(&Spec{
		Language:       Kotlin,
		FileExtensions: []string{".kt", ".kts"},
		Separator:      ".",
		FunctionNodeTypes: []string{
			"function_declaration",
			"secondary_constructor",
		},
		ClassNodeTypes: []string{
			"class_declaration",
			"object_declaration",
		},
		ModuleNodeTypes:    []string{"source_file"},
		CallNodeTypes:      []string{"call_expression"},
		ImportNodeTypes:    []string{"import"},
		ImportFromTypes:    []string{"import"},
		DecoratorNodeTypes: []string{"annotation"},
		PackageIndicators:  []string{"build.gradle", "build.gradle.kts"},
	})
}
