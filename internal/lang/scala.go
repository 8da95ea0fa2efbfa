package lang

func init() {
	Register(&Spec{
		Language:          Scala,
		FileExtensions:    []string{".scala", ".sc"},
		Separator:         ".",
		FunctionNodeTypes: []string{"function_definition", "function_declaration"},
		ClassNodeTypes: []string{
			"class_definition",
			"object_definition",
			"trait_definition",
		},
		ModuleNodeTypes:    []string{"compilation_unit"},
		CallNodeTypes:      []string{"call_expression"},
		ImportNodeTypes:    []string{"import_declaration"},
		ImportFromTypes:    []string{"import_declaration"},
		DecoratorNodeTypes: []string{"annotation"},
		PackageIndicators:  []string{"build.sbt"},
	})
}
