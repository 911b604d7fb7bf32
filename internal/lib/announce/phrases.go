package announce

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dpup/wayfinder/internal/lib/routing"
)

var maneuverPhrases = map[routing.Maneuver]string{
	routing.Straight:        "continue straight",
	routing.TurnLeft:        "turn left",
	routing.TurnRight:       "turn right",
	routing.TurnSlightLeft:  "turn slightly left",
	routing.TurnSlightRight: "turn slightly right",
	routing.TurnSharpLeft:   "turn sharp left",
	routing.TurnSharpRight:  "turn sharp right",
	routing.UTurnLeft:       "make a U-turn",
	routing.UTurnRight:      "make a U-turn",
	routing.RampLeft:        "take the ramp on the left",
	routing.RampRight:       "take the ramp on the right",
	routing.Merge:           "merge",
	routing.ForkLeft:        "keep left at the fork",
	routing.ForkRight:       "keep right at the fork",
	routing.RoundaboutLeft:  "enter the roundabout",
	routing.RoundaboutRight: "enter the roundabout",
	routing.Unknown:         "continue",
}

// ManeuverPhrase renders the spoken action for a step, including the
// roundabout exit when the instruction names one.
func ManeuverPhrase(step routing.Step) string {
	phrase, ok := maneuverPhrases[step.Maneuver]
	if !ok {
		phrase = maneuverPhrases[routing.Unknown]
	}
	if step.Maneuver.IsRoundabout() {
		if exit := RoundaboutExit(step.Instruction); exit != "" {
			phrase += " and take the " + exit
		}
	}
	return phrase
}

var streetTerminators = []string{",", " toward ", " then "}

var (
	ontoPattern = regexp.MustCompile(`(?i)\bonto\s+`)
	onPattern   = regexp.MustCompile(`(?i)\s+on\s+`)
)

// ExtractStreetName returns the street named in a free-form instruction: the
// text after "onto", else after " on ", cut at the first clause boundary.
// Returns "" when nothing usable is found.
func ExtractStreetName(instruction string) string {
	// Later lines carry hints such as "Destination will be on the right".
	instruction, _, _ = strings.Cut(instruction, "\n")

	var rest string
	if loc := ontoPattern.FindStringIndex(instruction); loc != nil {
		rest = instruction[loc[1]:]
	} else if loc := onPattern.FindStringIndex(instruction); loc != nil {
		rest = instruction[loc[1]:]
	} else {
		return ""
	}

	lowerRest := strings.ToLower(rest)
	cut := len(rest)
	for _, term := range streetTerminators {
		if i := strings.Index(lowerRest, term); i >= 0 && i < cut {
			cut = i
		}
	}

	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest[:cut]), "."))
}

var (
	numericExitPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\s+exit\b`)
	spelledExitPattern = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)\s+exit\b`)
)

var ordinals = []string{"", "first", "second", "third", "fourth", "fifth", "sixth", "seventh", "eighth", "ninth", "tenth"}

// RoundaboutExit extracts "second exit" style text from an instruction, or "".
func RoundaboutExit(instruction string) string {
	if m := numericExitPattern.FindStringSubmatch(instruction); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 && n < len(ordinals) {
			return ordinals[n] + " exit"
		}
		return ""
	}
	if m := spelledExitPattern.FindStringSubmatch(instruction); m != nil {
		return strings.ToLower(m[1]) + " exit"
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
