package boxvision

import (
	"encoding/json"
	"image"
	"regexp"
	"strconv"
	"strings"
)

var (
	bboxJSONRe = regexp.MustCompile(`\{[^{}]*"x1"[^{}]*"y1"[^{}]*"x2"[^{}]*"y2"[^{}]*\}`)
	intRe      = regexp.MustCompile(`\d+`)
	listRe     = regexp.MustCompile(`(?s)\[(.*?)\]`)
)

// parseBBox extracts a bounding box from a model reply. It prefers the strict
// JSON object the prompt asks for, then falls back to the first four integers
// in the text. ok is false when neither form is present; an all-zero box is
// returned as-is for the caller to treat as the not-found sentinel.
func parseBBox(text string) (image.Rectangle, bool) {
	if m := bboxJSONRe.FindString(text); m != "" {
		var c struct {
			X1 float64 `json:"x1"`
			Y1 float64 `json:"y1"`
			X2 float64 `json:"x2"`
			Y2 float64 `json:"y2"`
		}
		if err := json.Unmarshal([]byte(m), &c); err != nil {
			// A box-shaped reply that does not parse is a miss; scraping
			// digits out of it would pick up the key names.
			return image.Rectangle{}, false
		}
		return image.Rect(int(c.X1), int(c.Y1), int(c.X2), int(c.Y2)), true
	}

	nums := intRe.FindAllString(text, 4)
	if len(nums) == 4 {
		vals := make([]int, 4)
		for i, s := range nums {
			v, err := strconv.Atoi(s)
			if err != nil {
				return image.Rectangle{}, false
			}
			vals[i] = v
		}
		return image.Rect(vals[0], vals[1], vals[2], vals[3]), true
	}
	return image.Rectangle{}, false
}

// parseNameList extracts a string list from a model reply: strict JSON first,
// then a tolerant scrape of the first bracketed group. Unparseable replies
// yield an empty list rather than an error.
func parseNameList(text string) []string {
	trimmed := strings.TrimSpace(text)
	var names []string
	if err := json.Unmarshal([]byte(trimmed), &names); err == nil {
		return dropEmpty(names)
	}

	m := listRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	if err := json.Unmarshal([]byte("["+m[1]+"]"), &names); err == nil {
		return dropEmpty(names)
	}
	var out []string
	for _, part := range strings.Split(m[1], ",") {
		out = append(out, strings.Trim(part, ` "'`))
	}
	return dropEmpty(out)
}

func dropEmpty(names []string) []string {
	out := names[:0]
	for _, n := range names {
		if s := strings.TrimSpace(n); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
