package validate

import "fmt"

// Text field length limits enforced before any upload work starts.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxTagLength         = 50
	MaxTags              = 15
	MaxFilenameLength    = 255
)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Title(s string) string       { return checkLen(s, MaxTitleLength, "title") }
func Description(s string) string { return checkLen(s, MaxDescriptionLength, "description") }
func Tag(s string) string         { return checkLen(s, MaxTagLength, "tag") }
func Filename(s string) string    { return checkLen(s, MaxFilenameLength, "file name") }

func Tags(tags []string) string {
	if len(tags) > MaxTags {
		return fmt.Sprintf("no more than %d tags allowed", MaxTags)
	}
	for _, t := range tags {
		if msg := Tag(t); msg != "" {
			return msg
		}
	}
	return ""
}

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"title":       MaxTitleLength,
		"description": MaxDescriptionLength,
		"tag":         MaxTagLength,
		"tags":        MaxTags,
	}
}
