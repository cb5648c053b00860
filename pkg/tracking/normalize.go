package tracking

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinLength is the shortest accepted tracking number.
	MinLength = 3
	// MaxLength is the longest accepted tracking number.
	MaxLength = 50
)

var (
	// A label only counts when a separator or the end of input follows it,
	// so numbers such as "POL12345" keep their leading letters.
	labelPrefix   = regexp.MustCompile(`(?i)^(JobNum|PO|Tracking|Track)([:：\s]+|$)`)
	trailingNoise = regexp.MustCompile(`[:：\s]+$`)
	validChars    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	lineSplitter  = regexp.MustCompile(`[\n\r,，;；、]+`)
)

// Normalize trims raw input and strips known label prefixes such as
// "JobNum:" or "PO:" and any trailing colon or whitespace.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = labelPrefix.ReplaceAllString(s, "")
	s = trailingNoise.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Validate normalizes raw and checks length and character set.
func Validate(raw string) (string, error) {
	number := Normalize(raw)
	switch {
	case number == "":
		return "", fmt.Errorf("%w: tracking number is empty", ErrInvalidInput)
	case len(number) < MinLength:
		return "", fmt.Errorf("%w: tracking number %q is shorter than %d characters", ErrInvalidInput, number, MinLength)
	case len(number) > MaxLength:
		return "", fmt.Errorf("%w: tracking number is longer than %d characters", ErrInvalidInput, MaxLength)
	case !validChars.MatchString(number):
		return "", fmt.Errorf("%w: tracking number %q contains invalid characters", ErrInvalidInput, number)
	}
	return number, nil
}

// ParseBatchInput splits free text on newlines, commas, semicolons and
// whitespace, including their full-width forms. Invalid entries are dropped and duplicates keep their first
// position.
func ParseBatchInput(input string) []string {
	seen := make(map[string]struct{})
	var numbers []string

	for _, segment := range lineSplitter.Split(input, -1) {
		// labels are stripped per segment before splitting on whitespace
		for _, part := range strings.Fields(Normalize(segment)) {
			number, err := Validate(part)
			if err != nil {
				continue
			}
			if _, dup := seen[number]; dup {
				continue
			}
			seen[number] = struct{}{}
			numbers = append(numbers, number)
		}
	}

	return numbers
}
