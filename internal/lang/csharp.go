package lang

func init() {
	Register(&Spec{
		Language:       CSharp,
		FileExtensions: []string{".cs"},
		Separator:      ".",
		FunctionNodeTypes: []string{
			"method_declaration",
			"constructor_declaration",
			"local_function_statement",
		},
		ClassNodeTypes: []string{
			"class_declaration",
			"struct_declaration",
			"enum_declaration",
			"interface_declaration",
			"record_declaration",
		},
		ModuleNodeTypes:    []string{"compilation_unit"},
		CallNodeTypes:      []string{"invocation_expression"},
		ImportNodeTypes:    []string{"using_directive"},
		ImportFromTypes:    []string{"using_directive"},
		DecoratorNodeTypes: []string{"attribute_list"},
		PackageIndicators:  []string{"*.csproj"},
	})
}
