package overlay

import (
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"

	e "github.com/pulih-app/coach/domain/entities"
)

// Connection is an anatomical segment between two landmarks
type Connection struct {
	From, To int
}

// Connections is the fixed skeleton drawn between landmarks.
var Connections = []Connection{
	// face
	{e.Nose, e.LeftEyeInner}, {e.LeftEyeInner, e.LeftEye}, {e.LeftEye, e.LeftEyeOuter}, {e.LeftEyeOuter, e.LeftEar},
	{e.Nose, e.RightEyeInner}, {e.RightEyeInner, e.RightEye}, {e.RightEye, e.RightEyeOuter}, {e.RightEyeOuter, e.RightEar},
	{e.MouthLeft, e.MouthRight},

	// torso
	{e.LeftShoulder, e.RightShoulder},
	{e.LeftShoulder, e.LeftHip}, {e.RightShoulder, e.RightHip},
	{e.LeftHip, e.RightHip},

	// arms
	{e.LeftShoulder, e.LeftElbow}, {e.LeftElbow, e.LeftWrist},
	{e.RightShoulder, e.RightElbow}, {e.RightElbow, e.RightWrist},

	// hands
	{e.LeftWrist, e.LeftPinky}, {e.LeftWrist, e.LeftIndex}, {e.LeftWrist, e.LeftThumb}, {e.LeftPinky, e.LeftIndex},
	{e.RightWrist, e.RightPinky}, {e.RightWrist, e.RightIndex}, {e.RightWrist, e.RightThumb}, {e.RightPinky, e.RightIndex},

	// legs
	{e.LeftHip, e.LeftKnee}, {e.LeftKnee, e.LeftAnkle},
	{e.RightHip, e.RightKnee}, {e.RightKnee, e.RightAnkle},

	// feet
	{e.LeftAnkle, e.LeftHeel}, {e.LeftHeel, e.LeftFootIndex}, {e.LeftAnkle, e.LeftFootIndex},
	{e.RightAnkle, e.RightHeel}, {e.RightHeel, e.RightFootIndex}, {e.RightAnkle, e.RightFootIndex},
}

// HighlightGroups maps body-part names to the landmarks they highlight.
var HighlightGroups = map[string][]int{
	"core":      {e.LeftShoulder, e.RightShoulder, e.LeftHip, e.RightHip},
	"pelvis":    {e.LeftHip, e.RightHip},
	"shoulders": {e.LeftShoulder, e.RightShoulder},
	"arms":      {e.LeftElbow, e.RightElbow, e.LeftWrist, e.RightWrist},
	"legs":      {e.LeftKnee, e.RightKnee, e.LeftAnkle, e.RightAnkle},
}

// ResolveHighlight expands group names into a sorted, de-duplicated landmark list
func ResolveHighlight(groups []string) ([]int, error) {
	seen := make(map[int]bool)
	for _, name := range groups {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		landmarks, ok := HighlightGroups[name]
		if !ok {
			return nil, fmt.Errorf("unknown highlight group %q", name)
		}
		for _, idx := range landmarks {
			seen[idx] = true
		}
	}

	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

var namedColors = map[string]color.RGBA{
	"green":  {R: 0x22, G: 0xc5, B: 0x5e, A: 0xff},
	"yellow": {R: 0xea, G: 0xb3, B: 0x08, A: 0xff},
	"red":    {R: 0xef, G: 0x44, B: 0x44, A: 0xff},
	"blue":   {R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	"white":  {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
}

// ParseColor parses a skeleton color hint: #rrggbb, #rgb or a named color.
// Anything else returns fallback.
func ParseColor(hint string, fallback color.Color) color.Color {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return fallback
	}

	if c, ok := namedColors[hint]; ok {
		return c
	}

	if !strings.HasPrefix(hint, "#") {
		return fallback
	}
	hex := hint[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return fallback
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
