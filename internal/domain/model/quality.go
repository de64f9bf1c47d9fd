package model

// LabelOriginal labels a variant that is the untouched source media.
const LabelOriginal = "original"

// Quality describes one rung of the transcoding ladder.
// Output is scaled to fit within MaxWidth x MaxHeight, preserving aspect ratio.
type Quality struct {
	Label        string
	MaxWidth     int
	MaxHeight    int
	VideoBitrate string
}

var qualityLadder = []Quality{
	{Label: "360p", MaxWidth: 640, MaxHeight: 360, VideoBitrate: "500k"},
	{Label: "480p", MaxWidth: 854, MaxHeight: 480, VideoBitrate: "1000k"},
	{Label: "720p", MaxWidth: 1280, MaxHeight: 720, VideoBitrate: "2500k"},
	{Label: "1080p", MaxWidth: 1920, MaxHeight: 1080, VideoBitrate: "5000k"},
}

// QualityLadder returns the fixed ladder ordered from lowest to highest.
func QualityLadder() []Quality {
	ladder := make([]Quality, len(qualityLadder))
	copy(ladder, qualityLadder)
	return ladder
}

// SelectQualities returns the ladder rungs that do not exceed the source height.
func SelectQualities(sourceHeight int) []Quality {
	var selected []Quality
	for _, q := range qualityLadder {
		if q.MaxHeight <= sourceHeight {
			selected = append(selected, q)
		}
	}
	return selected
}

// QualityByLabel looks up a ladder rung.
func QualityByLabel(label string) (Quality, bool) {
	for _, q := range qualityLadder {
		if q.Label == label {
			return q, true
		}
	}
	return Quality{}, false
}
