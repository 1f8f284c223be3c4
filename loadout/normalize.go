// CLAUDE:SUMMARY Cleans raw loadout card lines: drops page chrome, extracts the updated date, pairs name/type lines into bullets.
package loadout

import (
	"regexp"
	"strings"
)

// chromeMarkers flag lines that belong to the page layout rather than the
// loadout itself. Matched against the upper-cased line.
var chromeMarkers = []string{"LEVEL", "CREATED ON", "UPDATED ON", "LOADOUTS"}

var (
	dateRe       = regexp.MustCompile(`(Created|Updated) on[ -]+(.+)`)
	yearRe       = regexp.MustCompile(`\d{4}`)
	multiSpaceRe = regexp.MustCompile(`[ \t\f\v\r]+`)
)

// Normalize turns a card's detail lines into attachment bullets and a
// last-updated label. rawLines is the full line set searched for the date;
// in practice it is the same slice as detailLines. The returned date is
// empty when nothing usable was found.
func Normalize(detailLines, rawLines []string) (attachments []string, updated string) {
	content := FilterChrome(CleanLines(detailLines))
	return PairLines(content), ExtractDate(CleanLines(rawLines), content)
}

// SplitLines splits innerText-style text on line breaks.
func SplitLines(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// CleanLines strips zero-width characters, collapses runs of whitespace and
// drops lines left empty.
func CleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Map(func(r rune) rune {
			switch r {
			case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
				return -1
			case '\u00a0':
				return ' '
			}
			return r
		}, l)
		l = strings.TrimSpace(multiSpaceRe.ReplaceAllString(l, " "))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// FilterChrome drops lines containing any chrome marker.
func FilterChrome(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !isChrome(l) {
			out = append(out, l)
		}
	}
	return out
}

func isChrome(line string) bool {
	up := strings.ToUpper(line)
	for _, m := range chromeMarkers {
		if strings.Contains(up, m) {
			return true
		}
	}
	return false
}

// ExtractDate finds the human-readable date among rawLines. The first line
// mentioning "Created on" or "Updated on" wins; its trailing part after the
// marker is returned. Without such a line the last content line is used when
// it carries a four-digit run, otherwise "" is returned.
func ExtractDate(rawLines, content []string) string {
	for _, l := range rawLines {
		if !strings.Contains(l, "Created on") && !strings.Contains(l, "Updated on") {
			continue
		}
		if m := dateRe.FindStringSubmatch(l); m != nil {
			return strings.TrimSpace(m[2])
		}
		parts := strings.Split(l, "on")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	if len(content) == 0 {
		return ""
	}
	last := content[len(content)-1]
	if yearRe.MatchString(last) {
		return last
	}
	return ""
}

// PairLines reads lines two at a time as (name, type) and formats each pair
// as "• name — type". A trailing unpaired line becomes "• name".
func PairLines(lines []string) []string {
	out := make([]string, 0, (len(lines)+1)/2)
	for i := 0; i < len(lines); i += 2 {
		if i+1 < len(lines) {
			out = append(out, "• "+lines[i]+" — "+lines[i+1])
			continue
		}
		out = append(out, "• "+lines[i])
	}
	return out
}
