package lang

func init() {
	Register(&Spec{
		Language:          Java,
		FileExtensions:    []string{".java"},
		Separator:         ".",
		FunctionNodeTypes: []string{"method_declaration", "constructor_declaration"},
		ClassNodeTypes: []string{
			"class_declaration",
			"interface_declaration",
			"enum_declaration",
			"record_declaration",
		},
		ModuleNodeTypes:    []string{"program"},
		CallNodeTypes:      []string{"method_invocation", "object_creation_expression"},
		ImportNodeTypes:    []string{"import_declaration"},
		ImportFromTypes:    []string{"import_declaration"},
		DecoratorNodeTypes: []string{"marker_annotation", "annotation"},
		PackageIndicators:  []string{"pom.xml", "build.gradle", "build.gradle.kts"},
	})
}
