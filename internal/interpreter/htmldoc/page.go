package htmldoc

import (
	"encoding/json"
	"regexp"
	"strings"

	"mapdna/internal/interpreter"
)

var (
	seedPattern  = regexp.MustCompile(`window\._mbData\s*=\s*window\._mbData\s*\|\|\s*\{\s*logging:\s*(true|false)`)
	popupPattern = regexp.MustCompile(`(?m)window\._mbData\.popups\['((?:[^'\\]|\\.)*)'\]\s*=\s*(\{.*\});\s*$`)
	tokenPattern = regexp.MustCompile(`window\.mapboxAccessToken\s*=\s*'((?:[^'\\]|\\.)*)'`)
)

var jsUnescaper = strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\n`, "\n", `\r`, "\r", `\x3c`, "<")

// Page reads the global client namespace out of the document's inline
// scripts: the logging flag, the access token and popup tables. Popup
// tables that do not decode are skipped.
func (d *Document) Page() interpreter.Page {
	page := interpreter.Page{Popups: map[string]map[string]interpreter.PopupData{}}
	for _, script := range d.Scripts() {
		if m := seedPattern.FindStringSubmatch(script); m != nil && m[1] == "true" {
			page.Logging = true
		}
		if m := tokenPattern.FindStringSubmatch(script); m != nil {
			page.AccessToken = jsUnescaper.Replace(m[1])
		}
		for _, m := range popupPattern.FindAllStringSubmatch(script, -1) {
			var table map[string]interpreter.PopupData
			if err := json.Unmarshal([]byte(m[2]), &table); err != nil {
				continue
			}
			page.Popups[jsUnescaper.Replace(m[1])] = table
		}
	}
	return page
}
