// Package morse holds the International Morse alphabet and the element
// timing shared by the Morse encoder and decoder.
package morse

import "unicode"

// Durations in dot units.
const (
	Dot          = 1
	Dash         = 3
	ElementGap   = 1
	CharacterGap = 3
	WordGap      = 7
)

var codes = map[rune]string{
	'A': ".-", 'B': "-...", 'C': "-.-.", 'D': "-..", 'E': ".", 'F': "..-.",
	'G': "--.", 'H': "....", 'I': "..", 'J': ".---", 'K': "-.-", 'L': ".-..",
	'M': "--", 'N': "-.", 'O': "---", 'P': ".--.", 'Q': "--.-", 'R': ".-.",
	'S': "...", 'T': "-", 'U': "..-", 'V': "...-", 'W': ".--", 'X': "-..-",
	'Y': "-.--", 'Z': "--..",

	'0': "-----", '1': ".----", '2': "..---", '3': "...--", '4': "....-",
	'5': ".....", '6': "-....", '7': "--...", '8': "---..", '9': "----.",

	'.': ".-.-.-", ',': "--..--", '?': "..--..", '/': "-..-.", '=': "-...-",
	'-': "-....-", '(': "-.--.", ')': "-.--.-", ':': "---...", ';': "-.-.-.",
	'"': ".-..-.", '\'': ".----.", '$': "...-..-", '!': "-.-.--", '&': ".-...",
	'+': ".-.-.", '_': "..--.-", '@': ".--.-.",
}

var letters = func() map[string]rune {
	m := make(map[string]rune, len(codes))
	for r, c := range codes {
		m[c] = r
	}
	return m
}()

// Code returns the element string for r, case-insensitively.
func Code(r rune) (string, bool) {
	c, ok := codes[unicode.ToUpper(r)]
	return c, ok
}

// Letter returns the character for an element string, or '?' when unknown.
func Letter(elements string) rune {
	if r, ok := letters[elements]; ok {
		return r
	}
	return '?'
}

// Mark is one keyed interval: carrier on or off for Units dot lengths.
type Mark struct {
	On    bool
	Units int
}

// Keying converts text into alternating on/off marks. Characters with no
// code are skipped; runs of whitespace become one word gap. There is no
// trailing gap.
func Keying(s string) []Mark {
	var marks []Mark
	gap := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			if len(marks) > 0 {
				gap = WordGap
			}
			continue
		}
		c, ok := Code(r)
		if !ok {
			continue
		}
		if len(marks) > 0 {
			marks = append(marks, Mark{Units: max(gap, CharacterGap)})
		}
		gap = 0
		for i, e := range c {
			if i > 0 {
				marks = append(marks, Mark{Units: ElementGap})
			}
			if e == '-' {
				marks = append(marks, Mark{On: true, Units: Dash})
			} else {
				marks = append(marks, Mark{On: true, Units: Dot})
			}
		}
	}
	return marks
}

// Units is the total length of marks in dot units.
func Units(marks []Mark) int {
	total := 0
	for _, m := range marks {
		total += m.Units
	}
	return total
}
