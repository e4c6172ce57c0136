package services

import (
	"archive/zip"
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"wordpress-plugin-generator/models"
)

//go:embed templates/traditional/*.tmpl
var templateFS embed.FS

var traditionalTemplates = template.Must(template.ParseFS(templateFS, "templates/traditional/*.tmpl"))

// zipEpoch pins entry timestamps so identical artifacts produce identical bytes.
var zipEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const silenceGuard = "<?php\n// Silence is golden.\n"

const defaultVersion = "1.0.0"

// TraditionalDirs lists every directory of the traditional layout, relative to the plugin root.
var TraditionalDirs = []string{
	"admin",
	"admin/css",
	"admin/js",
	"admin/partials",
	"includes",
	"public",
	"public/css",
	"public/js",
	"public/partials",
	"languages",
}

var (
	nonSlugChars   = regexp.MustCompile(`[^a-z0-9]+`)
	fenceOpen      = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n")
	fenceClose     = regexp.MustCompile("\r?\n?```[ \t]*$")
	phpFence       = regexp.MustCompile("(?s)```(?:php)?[ \t]*\r?\n(.*?)\r?\n```")
	phpTagPattern  = regexp.MustCompile(`<\?php|\?>`)
	headerComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	pluginNameLine = regexp.MustCompile(`(?m)^[ \t/*#@]*Plugin Name:`)
	versionLine    = regexp.MustCompile(`(?m)^[ \t/*#@]*Version:\s*(\S+)`)
	descLine       = regexp.MustCompile(`(?m)^[ \t/*#@]*Description:\s*(.+?)\s*$`)
)

// Slugify turns a display name into a file-safe plugin slug.
func Slugify(name string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "generated-plugin"
	}
	return slug
}

// PluginSlug returns the normalized slug for an artifact, deriving it from
// the display name when none was given.
func PluginSlug(artifact models.PluginArtifact) string {
	if artifact.Slug != "" {
		return Slugify(artifact.Slug)
	}
	return Slugify(artifact.DisplayName)
}

// WrapFences wraps code in a markdown code fence.
func WrapFences(code, lang string) string {
	return "```" + lang + "\n" + strings.TrimSpace(code) + "\n```"
}

// UnwrapFences returns the first fenced PHP block of code, dropping any prose
// around it. Without a closed fence it strips a leading wrapper, if any, and
// trims the result.
func UnwrapFences(code string) string {
	if m := phpFence.FindStringSubmatch(code); m != nil {
		return strings.TrimSpace(m[1])
	}
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "```") {
		return code
	}
	code = fenceOpen.ReplaceAllString(code, "")
	code = fenceClose.ReplaceAllString(code, "")
	return strings.TrimSpace(code)
}

// normalizePHP returns the code with a single leading <?php. Opening tags that
// appear while PHP mode is already open are dropped, as is a trailing ?>.
// Tags that re-open PHP after inline HTML are kept.
func normalizePHP(code string) string {
	code = UnwrapFences(code)

	var b strings.Builder
	open := true
	last := 0
	for _, loc := range phpTagPattern.FindAllStringIndex(code, -1) {
		tag := code[loc[0]:loc[1]]
		b.WriteString(code[last:loc[0]])
		last = loc[1]
		switch {
		case tag == "?>":
			if strings.TrimSpace(code[loc[1]:]) == "" {
				continue
			}
			open = false
			b.WriteString(tag)
		case !open:
			open = true
			b.WriteString(tag)
		default:
			// duplicate opening tag: drop it with its line break
			if strings.HasPrefix(code[last:], "\r\n") {
				last += 2
			} else if strings.HasPrefix(code[last:], "\n") {
				last++
			}
		}
	}
	b.WriteString(code[last:])

	return "<?php\n" + strings.TrimSpace(b.String()) + "\n"
}

type pluginNames struct {
	Slug        string
	Ident       string
	Class       string
	Const       string
	DisplayName string
	Version     string
	Description string
	Header      string
	Body        string
	Area        string
	AreaSlug    string
}

// phpIdent converts a slug into a PHP identifier segment. Hyphens are only
// legal in file names, never in identifiers.
func phpIdent(slug string) string {
	ident := strings.ReplaceAll(slug, "-", "_")
	if ident != "" && ident[0] >= '0' && ident[0] <= '9' {
		ident = "plugin_" + ident
	}
	return ident
}

func newPluginNames(artifact models.PluginArtifact) pluginNames {
	slug := PluginSlug(artifact)
	ident := phpIdent(slug)

	parts := strings.Split(ident, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}

	// the name lands inside PHP and CSS block comments
	display := strings.TrimSpace(strings.ReplaceAll(artifact.DisplayName, "*/", "* /"))
	if display == "" {
		display = strings.Join(parts, " ")
	}

	return pluginNames{
		Slug:        slug,
		Ident:       ident,
		Class:       strings.Join(parts, "_"),
		Const:       strings.ToUpper(ident),
		DisplayName: display,
		Version:     defaultVersion,
		Description: "Generated by the WordPress Plugin Generator.",
	}
}

func defaultHeader(n pluginNames) string {
	return fmt.Sprintf(`/**
 * Plugin Name: %s
 * Description: %s
 * Version: %s
 * Text Domain: %s
 */`, n.DisplayName, n.Description, n.Version, n.Slug)
}

// HasPluginHeader reports whether code carries a WordPress plugin header.
func HasPluginHeader(code string) bool {
	return pluginNameLine.MatchString(code)
}

// Package builds the plugin ZIP for an artifact. It has no side effects.
func Package(artifact models.PluginArtifact) ([]byte, error) {
	if strings.TrimSpace(artifact.MainCode) == "" {
		return nil, fmt.Errorf("plugin code is empty")
	}

	names := newPluginNames(artifact)

	var files map[string]string
	var err error
	switch artifact.StructureKind {
	case models.StructureTraditional:
		files, err = traditionalFiles(names, artifact.MainCode)
	case models.StructureSimplified, "":
		files = simplifiedFiles(names, artifact.MainCode)
	default:
		return nil, fmt.Errorf("unknown structure kind %q", artifact.StructureKind)
	}
	if err != nil {
		return nil, err
	}

	return writeZip(names.Slug, files)
}

// PackageFiles returns the plugin files keyed by path relative to the plugin
// directory, for transports that upload files one by one.
func PackageFiles(artifact models.PluginArtifact) (map[string]string, error) {
	if strings.TrimSpace(artifact.MainCode) == "" {
		return nil, fmt.Errorf("plugin code is empty")
	}
	names := newPluginNames(artifact)
	if artifact.StructureKind == models.StructureTraditional {
		return traditionalFiles(names, artifact.MainCode)
	}
	return simplifiedFiles(names, artifact.MainCode), nil
}

func simplifiedFiles(n pluginNames, code string) map[string]string {
	main := normalizePHP(code)
	if !HasPluginHeader(main) {
		main = "<?php\n" + defaultHeader(n) + "\n\n" + strings.TrimPrefix(main, "<?php\n")
	}
	return map[string]string{n.Slug + ".php": main}
}

func traditionalFiles(n pluginNames, code string) (map[string]string, error) {
	body := strings.TrimPrefix(normalizePHP(code), "<?php\n")

	header := ""
	if loc := headerComment.FindStringIndex(body); loc != nil && HasPluginHeader(body[loc[0]:loc[1]]) {
		header = body[loc[0]:loc[1]]
		body = strings.TrimSpace(body[:loc[0]] + body[loc[1]:])
	}
	if header == "" {
		header = defaultHeader(n)
	}
	if m := versionLine.FindStringSubmatch(header); m != nil {
		n.Version = m[1]
	}
	if m := descLine.FindStringSubmatch(header); m != nil {
		n.Description = m[1]
	}
	n.Header = header
	n.Body = body

	files := map[string]string{"index.php": silenceGuard}
	files["admin/css/"+n.Slug+"-admin.css"] = "/* Admin styles for " + n.DisplayName + ". */\n"
	files["admin/js/"+n.Slug+"-admin.js"] = "(function( $ ) {\n\t'use strict';\n})( jQuery );\n"
	files["public/css/"+n.Slug+"-public.css"] = "/* Public styles for " + n.DisplayName + ". */\n"
	files["public/js/"+n.Slug+"-public.js"] = "(function( $ ) {\n\t'use strict';\n})( jQuery );\n"
	files["languages/"+n.Slug+".pot"] = "# Translation template for " + n.DisplayName + ".\nmsgid \"\"\nmsgstr \"\"\n"
	for _, dir := range TraditionalDirs {
		files[dir+"/index.php"] = silenceGuard
	}

	rendered := []struct {
		path, tmpl string
		data       pluginNames
	}{
		{n.Slug + ".php", "main.php.tmpl", n},
		{"uninstall.php", "uninstall.php.tmpl", n},
		{"README.txt", "readme.txt.tmpl", n},
		{"LICENSE.txt", "license.txt.tmpl", n},
		{"includes/class-" + n.Slug + ".php", "class-core.php.tmpl", n},
		{"includes/class-" + n.Slug + "-loader.php", "class-loader.php.tmpl", n},
		{"includes/class-" + n.Slug + "-i18n.php", "class-i18n.php.tmpl", n},
		{"includes/class-" + n.Slug + "-activator.php", "class-activator.php.tmpl", n},
		{"includes/class-" + n.Slug + "-deactivator.php", "class-deactivator.php.tmpl", n},
		{"includes/" + n.Slug + "-functions.php", "functions.php.tmpl", n},
		{"admin/class-" + n.Slug + "-admin.php", "class-admin.php.tmpl", n},
		{"public/class-" + n.Slug + "-public.php", "class-public.php.tmpl", n},
		{"admin/partials/" + n.Slug + "-admin-display.php", "display.php.tmpl", withArea(n, "Admin")},
		{"public/partials/" + n.Slug + "-public-display.php", "display.php.tmpl", withArea(n, "Public")},
	}

	for _, r := range rendered {
		var buf bytes.Buffer
		if err := traditionalTemplates.ExecuteTemplate(&buf, r.tmpl, r.data); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", r.path, err)
		}
		files[r.path] = buf.String()
	}

	return files, nil
}

func withArea(n pluginNames, area string) pluginNames {
	n.Area = area
	n.AreaSlug = strings.ToLower(area)
	return n
}

func sortedKeys(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func writeZip(slug string, files map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range sortedKeys(files) {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     slug + "/" + p,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", p, err)
		}
		if _, err := w.Write([]byte(files[p])); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", p, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
