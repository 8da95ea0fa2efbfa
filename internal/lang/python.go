package lang

func init() {
	Register(&Spec{
		Language:           Python,
		FileExtensions:     []string{".py"},
		Separator:          ".",
		FunctionNodeTypes:  []string{"function_definition"},
		ClassNodeTypes:     []string{"class_definition"},
		ModuleNodeTypes:    []string{"module"},
		CallNodeTypes:      []string{"call"},
		ImportNodeTypes:    []string{"import_statement"},
		ImportFromTypes:    []string{"import_from_statement"},
		DecoratorNodeTypes: []string{"decorator"},
		PackageIndicators:  []string{"__init__.py", "pyproject.toml", "setup.py"},
	})
}
