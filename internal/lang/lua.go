package lang

func init() {
	Register(&Spec{
		Language:          Lua,
		FileExtensions:    []string{".lua"},
		Separator:         ".",
		FunctionNodeTypes: []string{"function_declaration", "function_definition"},
		ClassNodeTypes:    []string{},
		ModuleNodeTypes:   []string{"chunk"},
		CallNodeTypes:     []string{"function_call"},
		ImportNodeTypes:   []string{"function_call"},
		PackageIndicators: []string{"rockspec"},
	})
}
