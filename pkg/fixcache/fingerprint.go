package fixcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mendhq/mend/pkg/types"
)

var (
	numberRe      = regexp.MustCompile(`\d+`)
	pathRe        = regexp.MustCompile(`[/\\][^\s]+`)
	singleQuoteRe = regexp.MustCompile(`'[^']*'`)
	doubleQuoteRe = regexp.MustCompile(`"[^"]*"`)
	stackFrameRe  = regexp.MustCompile(`in (\w+)`)
)

// Fingerprint computes a stable identity for an error context. Two
// contexts that differ only in incidental values (line numbers, paths,
// quoted identifiers) fingerprint identically; different error kinds
// never collide.
func Fingerprint(ec types.ErrorContext) string {
	normalized := normalizeMessage(ec.Message)

	baseFile := ""
	if ec.SourceFile != "" {
		baseFile = filepath.Base(ec.SourceFile)
	}

	key := fmt.Sprintf("%s|%s|%s", ec.Kind, normalized, baseFile)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// normalizeMessage strips the incidental parts of an error message:
// numeric literals become N, filesystem paths become <path>, quoted
// literals become <var>, and the result is lower-cased.
func normalizeMessage(message string) string {
	message = numberRe.ReplaceAllString(message, "N")
	message = pathRe.ReplaceAllString(message, "<path>")
	message = singleQuoteRe.ReplaceAllString(message, "<var>")
	message = doubleQuoteRe.ReplaceAllString(message, "<var>")
	return strings.ToLower(strings.TrimSpace(message))
}

// similarity computes the Jaccard token-set overlap of two normalized
// messages
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(s) {
		set[token] = struct{}{}
	}
	return set
}

// stackPattern reduces a stack trace to the first few frame function
// names, dropping file names and line numbers
func stackPattern(stackTrace string) string {
	matches := stackFrameRe.FindAllStringSubmatch(stackTrace, -1)

	functions := make([]string, 0, len(matches))
	for _, m := range matches {
		functions = append(functions, m[1])
		if len(functions) == 5 {
			break
		}
	}

	return strings.Join(functions, " -> ")
}
