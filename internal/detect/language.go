package detect

import "strings"

// Language identifies the source language of a changed file, by extension.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangGo         Language = "go"
	LangRust       Language = "rust"
	LangPHP        Language = "php"
	LangRuby       Language = "ruby"
	LangUnknown    Language = "unknown"
)

var extLanguages = map[string]Language{
	".py":   LangPython,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".ts":   LangTypeScript,
	".tsx":  LangTypeScript,
	".java": LangJava,
	".c":    LangC,
	".h":    LangC,
	".cc":   LangCPP,
	".cpp":  LangCPP,
	".cxx":  LangCPP,
	".hpp":  LangCPP,
	".go":   LangGo,
	".rs":   LangRust,
	".php":  LangPHP,
	".rb":   LangRuby,
}

// LanguageOf returns the language for a file path.
func LanguageOf(path string) Language {
	lower := strings.ToLower(path)
	if i := strings.LastIndex(lower, "."); i >= 0 {
		if lang, ok := extLanguages[lower[i:]]; ok {
			return lang
		}
	}
	return LangUnknown
}

// PrimaryLanguage picks the dominant language across changed files, or
// "mixed" when no single language leads.
func PrimaryLanguage(paths []string) string {
	counts := map[Language]int{}
	for _, p := range paths {
		if lang := LanguageOf(p); lang != LangUnknown {
			counts[lang]++
		}
	}
	best, bestN := LangUnknown, 0
	total := 0
	for lang, n := range counts {
		total += n
		if n > bestN {
			best, bestN = lang, n
		}
	}
	if total == 0 {
		return "mixed"
	}
	if bestN*2 < total {
		return "mixed"
	}
	return string(best)
}
