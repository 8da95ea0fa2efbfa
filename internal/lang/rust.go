package lang

func init() {
	Register(&Spec{
		Language:       Rust,
		FileExtensions: []string{".rs"},
		Separator:      "::",
		FunctionNodeTypes: []string{
			"function_item",
			"function_signature_item",
		},
		ClassNodeTypes: []string{
			"struct_item",
			"enum_item",
			"union_item",
			"trait_item",
			"impl_item",
		},
		ModuleNodeTypes:    []string{"source_file", "mod_item"},
		CallNodeTypes:      []string{"call_expression"},
		ImportNodeTypes:    []string{"use_declaration", "extern_crate_declaration"},
		ImportFromTypes:    []string{"use_declaration"},
		DecoratorNodeTypes: []string{"attribute_item"},
		PackageIndicators:  []string{"Cargo.toml"},
	})
}
