package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageTableResolve(t *testing.T) {
	table := NewLanguageTable(DefaultLanguages(), nil)

	tests := []struct {
		language string
		expected string
		hasError bool
	}{
		{"python", LanguagePython, false},
		{"PYTHON", LanguagePython, false},
		{"py", LanguagePython, false},
		{"python3", LanguagePython, false},
		{"javascript", LanguageJavaScript, false},
		{"JS", LanguageJavaScript, false},
		{"node", LanguageJavaScript, false},
		{"java", LanguageJava, false},
		{"cpp", LanguageCPP, false},
		{"C++", LanguageCPP, false},
		{"c", LanguageC, false},
		{" c ", LanguageC, false},
		{"ruby", "", true},
		{"go", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			profile, err := table.Resolve(tt.language)
			if tt.hasError {
				require.ErrorIs(t, err, ErrUnsupportedLanguage)
				assert.Contains(t, err.Error(), tt.language)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, profile.ID)
		})
	}
}

func TestDefaultLanguages(t *testing.T) {
	table := NewLanguageTable(DefaultLanguages(), nil)
	assert.Equal(t, []string{"c", "cpp", "java", "javascript", "python"}, table.IDs())

	compiled := map[string]bool{
		LanguagePython:     false,
		LanguageJavaScript: false,
		LanguageJava:       true,
		LanguageCPP:        true,
		LanguageC:          true,
	}
	for _, p := range table.Profiles() {
		assert.Equal(t, compiled[p.ID], p.Compiled(), p.ID)
		assert.NotEmpty(t, p.RunCmd, p.ID)
		assert.NotEmpty(t, p.Image, p.ID)
	}
}

func TestLanguageTableImageOverride(t *testing.T) {
	table := NewLanguageTable(DefaultLanguages(), map[string]string{
		LanguagePython: "registry.local/python:3.12",
		LanguageC:      "",
	})

	python, err := table.Resolve("python")
	require.NoError(t, err)
	assert.Equal(t, "registry.local/python:3.12", python.Image)

	c, err := table.Resolve("c")
	require.NoError(t, err)
	assert.Equal(t, "gcc:13", c.Image)
}

func TestSourceFileName(t *testing.T) {
	table := NewLanguageTable(DefaultLanguages(), nil)

	tests := []struct {
		language string
		code     string
		expected string
	}{
		{"python", "print(1)", "main.py"},
		{"javascript", "console.log(1)", "main.js"},
		{"cpp", "int main(){}", "main.cpp"},
		{"c", "int main(){}", "main.c"},
		{"java", "public class Main {}", "Main.java"},
		{"java", "  public class Runner{\n}", "Runner.java"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			profile, err := table.Resolve(tt.language)
			require.NoError(t, err)
			name, err := profile.SourceFileName(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestJavaClassName(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		expected string
		hasError bool
	}{
		{"Simple", "public class Main {\n}", "Main", false},
		{"BraceAttached", "public class Main{\n}", "Main", false},
		{"Indented", "import java.io.*;\n\n   public class Solver {", "Solver", false},
		{"FirstWins", "public class First {}\npublic class Second {}", "First", false},
		{"Dollar", "public class $Odd_1 {}", "$Odd_1", false},
		{"Generic", "public class Box<T> {}", "", true},
		{"Missing", "class Main {}", "", true},
		{"FinalModifier", "public final class Main {}", "", true},
		{"Semicolon", "public class Main;", "Main", false},
		{"Injection", "public class A|rm {}", "", true},
		{"Substitution", "public class A`id` {}", "", true},
		{"Empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := JavaClassName(tt.code)
			if tt.hasError {
				require.ErrorIs(t, err, ErrInvalidSource)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestTemplatePathsExpand(t *testing.T) {
	paths := TemplatePaths{Source: "/w/Main.java", Output: "/w", Class: "Main"}
	assert.Equal(t, "javac -d /w /w/Main.java", paths.Expand("javac -d {out} {src}"))
	assert.Equal(t, "java -cp /w Main", paths.Expand("java -cp {out} {class}"))
	assert.Equal(t, "echo plain", paths.Expand("echo plain"))
}
