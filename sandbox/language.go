package sandbox

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

// Language identifiers
const (
	LanguagePython     = "python"
	LanguageJava       = "java"
	LanguageJavaScript = "javascript"
	LanguageCPP        = "cpp"
	LanguageC          = "c"
)

// Template placeholders expanded by TemplatePaths.Expand.
const (
	placeholderSource = "{src}"
	placeholderOutput = "{out}"
	placeholderClass  = "{class}"
)

// LanguageProfile describes how one language is compiled and run.
// SourceFile may reference {class}; CompileCmd and RunCmd may reference
// {src}, {out} and {class}.
type LanguageProfile struct {
	ID         string
	SourceFile string
	CompileCmd string
	RunCmd     string
	Image      string
}

// Compiled reports whether the language has a compile phase.
func (p LanguageProfile) Compiled() bool {
	return p.CompileCmd != ""
}

// SourceFileName returns the file name the code must be written to. For Java
// the name follows the public class declared in the code.
func (p LanguageProfile) SourceFileName(code string) (string, error) {
	if !strings.Contains(p.SourceFile, placeholderClass) {
		return p.SourceFile, nil
	}
	class, err := JavaClassName(code)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(p.SourceFile, placeholderClass, class), nil
}

// TemplatePaths are the values substituted into command templates.
type TemplatePaths struct {
	Source string
	Output string
	Class  string
}

// Expand substitutes the placeholders of a command template.
func (p TemplatePaths) Expand(tpl string) string {
	return strings.NewReplacer(
		placeholderSource, p.Source,
		placeholderOutput, p.Output,
		placeholderClass, p.Class,
	).Replace(tpl)
}

// stemName strips the extension of a source file name.
func stemName(sourceName string) string {
	return strings.TrimSuffix(sourceName, path.Ext(sourceName))
}

// DefaultLanguages returns the built-in dispatch table entries.
func DefaultLanguages() []LanguageProfile {
	return []LanguageProfile{
		{
			ID:         LanguagePython,
			SourceFile: "main.py",
			RunCmd:     "python3 {src}",
			Image:      "python:3.11-slim",
		},
		{
			ID:         LanguageJavaScript,
			SourceFile: "main.js",
			RunCmd:     "node {src}",
			Image:      "node:18-slim",
		},
		{
			ID:         LanguageJava,
			SourceFile: "{class}.java",
			CompileCmd: "javac -d {out} {src}",
			RunCmd:     "java -cp {out} {class}",
			Image:      "eclipse-temurin:17-jdk",
		},
		{
			ID:         LanguageCPP,
			SourceFile: "main.cpp",
			CompileCmd: "g++ -O2 -o {out}/main {src}",
			RunCmd:     "{out}/main",
			Image:      "gcc:13",
		},
		{
			ID:         LanguageC,
			SourceFile: "main.c",
			CompileCmd: "gcc -O2 -o {out}/main {src}",
			RunCmd:     "{out}/main",
			Image:      "gcc:13",
		},
	}
}

var languageAliases = map[string]string{
	"py":      LanguagePython,
	"python3": LanguagePython,
	"js":      LanguageJavaScript,
	"node":    LanguageJavaScript,
	"nodejs":  LanguageJavaScript,
	"c++":     LanguageCPP,
}

// LanguageTable maps language identifiers to profiles. It is built once and
// never mutated, so it is safe for concurrent use.
type LanguageTable struct {
	profiles map[string]LanguageProfile
}

// NewLanguageTable builds a table from profiles. images overrides the image
// of a profile by language id; empty values are ignored.
func NewLanguageTable(profiles []LanguageProfile, images map[string]string) *LanguageTable {
	t := &LanguageTable{profiles: make(map[string]LanguageProfile, len(profiles))}
	for _, p := range profiles {
		if img := images[p.ID]; img != "" {
			p.Image = img
		}
		t.profiles[p.ID] = p
	}
	return t
}

// Resolve looks a language up case-insensitively.
func (t *LanguageTable) Resolve(language string) (LanguageProfile, error) {
	id := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[id]; ok {
		id = alias
	}
	p, ok := t.profiles[id]
	if !ok {
		return LanguageProfile{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	return p, nil
}

// IDs returns the supported language identifiers in sorted order.
func (t *LanguageTable) IDs() []string {
	ids := make([]string, 0, len(t.profiles))
	for id := range t.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Profiles returns every profile, ordered by id.
func (t *LanguageTable) Profiles() []LanguageProfile {
	ids := t.IDs()
	out := make([]LanguageProfile, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.profiles[id])
	}
	return out
}

const publicClassPrefix = "public class "

var javaIdentifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// JavaClassName finds the first line declaring a public class and returns
// the class name.
func JavaClassName(code string) (string, error) {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, publicClassPrefix) {
			continue
		}
		fields := strings.Fields(line[len(publicClassPrefix):])
		if len(fields) == 0 {
			break
		}
		name := strings.TrimSpace(strings.Map(func(r rune) rune {
			if r == '{' || r == '}' || r == ';' {
				return -1
			}
			return r
		}, fields[0]))
		if !javaIdentifier.MatchString(name) {
			return "", invalidSource("invalid public class name %q", name)
		}
		return name, nil
	}
	return "", invalidSource("no public class found in Java code")
}
