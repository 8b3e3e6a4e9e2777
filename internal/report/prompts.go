package report

import (
	"fmt"
	"strings"
	"time"

	"go-palm-insight/internal/aiclient"
	"go-palm-insight/pkg/models"
)

// section is one generated block of a report: the instruction that opens the
// prompt and the JSON fields the answer must carry.
type section struct {
	name   string
	intro  string
	fields string
}

var dimensionSections = map[models.Dimension]section{
	models.DimensionPersonality: {
		name:   "personality",
		intro:  "Describe the personality suggested by this palm.",
		fields: "summary (text), traits (list), strengths (list), challenges (list)",
	},
	models.DimensionHealth: {
		name:   "health",
		intro:  "Describe the vitality and wellbeing tendencies suggested by this palm. Do not give medical advice.",
		fields: "summary (text), strengths (list), concerns (list), recommendations (list)",
	},
	models.DimensionCareer: {
		name:   "career",
		intro:  "Describe the career inclinations suggested by this palm.",
		fields: "summary (text), suitable_fields (list), strengths (list), advice (list)",
	},
	models.DimensionRelationship: {
		name:   "relationship",
		intro:  "Describe how this person approaches relationships, based on this palm.",
		fields: "summary (text), traits (list), compatibility (list), advice (list)",
	},
	models.DimensionFortune: {
		name:   "fortune",
		intro:  "Describe the opportunities and cautions suggested by this palm for the coming period.",
		fields: "summary (text), lucky_elements (list), opportunities (list), cautions (list)",
	},
}

var (
	detailedSection = section{
		name:   "detailed_analysis",
		intro:  "Write a long-form reading that deepens the quick reading below.",
		fields: "personality (text), career (text), relationships (text), health (text)",
	}
	recommendationsSection = section{
		name:   "recommendations",
		intro:  "Suggest practices that fit the reading below.",
		fields: "daily (list), weekly (list), monthly (list), yearly (list)",
	}
	futureSection = section{
		name:   "future_insights",
		intro:  "Describe what the coming periods may hold for this person.",
		fields: "next_three_months (text), next_year (text), long_term (text), key_periods (list)",
	}
	compatibilitySection = section{
		name:   "compatibility",
		intro:  "Describe which temperaments this person pairs with easily and which take more effort.",
		fields: "best_matches (list), challenging (list), advice (list)",
	}
)

// dimensionPrompt projects the feature fields relevant to d into text
func dimensionPrompt(d models.Dimension, f *models.PalmFeatures, user models.UserInfo, now time.Time) string {
	sec := dimensionSections[d]

	var b strings.Builder
	b.WriteString("You are an experienced palm reader writing a short, warm reading.\n")
	b.WriteString(sec.intro)
	b.WriteString("\n\nPalm observations:\n")

	switch d {
	case models.DimensionPersonality:
		writeLine(&b, "Head line", f.Lines.Head)
		writeLine(&b, "Heart line", f.Lines.Heart)
		writeShape(&b, f.Shape)
	case models.DimensionHealth:
		writeLine(&b, "Life line", f.Lines.Life)
		fmt.Fprintf(&b, "- Hand flexibility: %s (%.2f)\n", level(f.Shape.Flexibility), f.Shape.Flexibility)
		fmt.Fprintf(&b, "- Thumb length %.0f, flexibility %.2f\n", f.Fingers.Thumb.Length, f.Fingers.Thumb.Flexibility)
	case models.DimensionCareer:
		writeLine(&b, "Head line", f.Lines.Head)
		if f.Lines.Fate != nil {
			writeLine(&b, "Fate line", *f.Lines.Fate)
		}
		writeFinger(&b, "Index", f.Fingers.Index)
		writeFinger(&b, "Middle", f.Fingers.Middle)
	case models.DimensionRelationship:
		writeLine(&b, "Heart line", f.Lines.Heart)
		writeFinger(&b, "Ring", f.Fingers.Ring)
		writeFinger(&b, "Pinky", f.Fingers.Pinky)
	case models.DimensionFortune:
		if f.Lines.Fate != nil {
			writeLine(&b, "Fate line", *f.Lines.Fate)
		}
		writeLine(&b, "Life line", f.Lines.Life)
		fmt.Fprintf(&b, "- Overall reading confidence: %.2f\n", f.Confidence)
	}

	writeUser(&b, user, now)
	writeDirective(&b, sec)
	return b.String()
}

// fullPrompt builds a full-report section prompt from the quick reading and
// the re-derived features
func fullPrompt(sec section, quick *models.QuickReport, f *models.PalmFeatures, user models.UserInfo, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are an experienced palm reader preparing a complete reading.\n")
	b.WriteString(sec.intro)
	b.WriteString("\n\nQuick reading:\n")
	for _, d := range models.Dimensions {
		if s := quick.Summary(d); s != "" {
			fmt.Fprintf(&b, "- %s: %s\n", d, s)
		}
	}
	b.WriteString("\nPalm observations:\n")
	writeLine(&b, "Life line", f.Lines.Life)
	writeLine(&b, "Head line", f.Lines.Head)
	writeLine(&b, "Heart line", f.Lines.Heart)
	writeShape(&b, f.Shape)

	writeUser(&b, user, now)
	writeDirective(&b, sec)
	return b.String()
}

func writeLine(b *strings.Builder, label string, l models.PalmLine) {
	fmt.Fprintf(b, "- %s: %s length (%.0f px), %s depth, %s clarity\n",
		label, lengthWord(l.Length), l.Length, level(l.Depth), level(l.Clarity))
}

func writeShape(b *strings.Builder, s models.PalmShape) {
	fmt.Fprintf(b, "- Hand shape: %s, palm ratio %.2f, %s flexibility\n", s.Type, s.Ratio, level(s.Flexibility))
}

func writeFinger(b *strings.Builder, label string, f models.Finger) {
	fmt.Fprintf(b, "- %s finger: length %.0f, %s tip\n", label, f.Length, f.Tip)
}

func writeUser(b *strings.Builder, user models.UserInfo, now time.Time) {
	b.WriteString("\nAbout the person:\n")
	if age := user.Age(now); age > 0 {
		fmt.Fprintf(b, "- Age: %d\n", age)
	}
	if user.Gender != "" && user.Gender != models.GenderUnspecified {
		fmt.Fprintf(b, "- Gender: %s\n", user.Gender)
	}
	if user.BirthTime != "" {
		fmt.Fprintf(b, "- Born at: %s\n", user.BirthTime)
	}
	if user.BirthLocation != "" {
		fmt.Fprintf(b, "- Born in: %s\n", user.BirthLocation)
	}
	fmt.Fprintf(b, "\nWrite in the language with code %q.\n", user.Lang())
}

func writeDirective(b *strings.Builder, sec section) {
	b.WriteString(aiclient.FieldsDirective)
	b.WriteString(" ")
	b.WriteString(sec.fields)
	b.WriteString(".\n")
}

func level(v float64) string {
	switch {
	case v >= 0.7:
		return "strong"
	case v >= 0.4:
		return "moderate"
	default:
		return "faint"
	}
}

func lengthWord(px float64) string {
	switch {
	case px >= 500:
		return "long"
	case px >= 250:
		return "medium"
	default:
		return "short"
	}
}
