package report

import (
	"time"

	"go-palm-insight/pkg/models"
)

const (
	guidanceDays   = 7
	forecastMonths = 12
)

// Curated pools. Selection is keyed on line clarity, line length and hand
// flexibility so the same features always yield the same content.
var dailyPools = map[string][]string{
	"clear": {
		"Act on the plan you already trust; your judgment is sharp today.",
		"Say the thing you have been rehearsing. Directness lands well.",
		"A good day to finish rather than start. Close one open loop.",
		"Lead the conversation. Others are ready to follow a clear idea.",
		"Make the decision you have been circling. The signs are steady.",
		"Share credit generously; it returns to you later in the week.",
		"Put structure around a loose idea and it will take shape fast.",
	},
	"balanced": {
		"Listen first, then decide. The middle path pays off today.",
		"Small routines carry you further than bold moves right now.",
		"Check in with someone you have not spoken to in a while.",
		"Balance work with an hour that belongs only to you.",
		"An old interest deserves another look this afternoon.",
		"Keep promises small and keep all of them.",
		"Let a problem rest overnight; the answer comes with morning.",
	},
	"reflective": {
		"Slow down and write down what you actually want this week.",
		"Rest is productive today. Protect your energy.",
		"Notice what drains you and step back from one of those things.",
		"A quiet walk will clear more than a crowded meeting.",
		"Revisit a decision you made in a hurry.",
		"Ask for help with something you usually carry alone.",
		"Trust gradual progress. Nothing needs to be settled today.",
	},
}

var shapeColors = map[models.HandShape][]string{
	models.HandSquare:      {"brown", "green", "navy", "olive"},
	models.HandRectangular: {"blue", "silver", "white", "teal"},
	models.HandConic:       {"rose", "violet", "gold", "coral"},
	models.HandSpatulate:   {"red", "orange", "yellow", "copper"},
}

var forecastThemes = map[bool][]string{
	// keyed on whether the fate line is long
	true: {
		"Momentum", "Recognition", "Expansion", "Commitment",
		"Harvest", "Direction", "Visibility", "Consolidation",
		"Leadership", "Renewal", "Alignment", "Completion",
	},
	false: {
		"Exploration", "Foundations", "Curiosity", "Connection",
		"Patience", "Discovery", "Adjustment", "Growth",
		"Clarity", "Flexibility", "Preparation", "Reflection",
	},
}

var forecastFocus = []string{"career", "relationships", "health", "finances", "learning", "home"}

var forecastAdvice = map[string][]string{
	"high": {
		"Channel spare energy into one ambitious project.",
		"Say yes to the invitation that scares you a little.",
		"Move quickly, but write your decisions down.",
	},
	"steady": {
		"Keep a steady pace and review progress at mid-month.",
		"Protect the routines that are working.",
		"Pick one habit to strengthen and ignore the rest for now.",
	},
	"gentle": {
		"Leave room in your calendar for recovery.",
		"Let others take the lead on one shared task.",
		"Favor depth over breadth in everything you start.",
	},
}

var yearlyThemes = map[models.HandShape]string{
	models.HandSquare:      "A year of building solid ground",
	models.HandRectangular: "A year of steady, well-planned progress",
	models.HandConic:       "A year of creative openings",
	models.HandSpatulate:   "A year of bold starts and new territory",
}

var yearlyOverviews = map[string]string{
	"clear":      "Your lines are well defined, which points to a year where intentions turn into results without much friction.",
	"balanced":   "Your lines mix strong and soft passages, suggesting a year that rewards patience in some areas and initiative in others.",
	"reflective": "Your lines are soft and fine, pointing to a year of inner work whose results show later than you expect.",
}

var quarterThemes = [4]string{"Planting", "Growing", "Tending", "Gathering"}

var quarterAdvice = map[string][4]string{
	"high": {
		"Start the project you postponed last year.",
		"Widen your circle; new people bring new chances.",
		"Focus the energy of spring on the two goals that matter most.",
		"Celebrate, then write down what you learned.",
	},
	"steady": {
		"Set a simple plan and keep it visible.",
		"Check the plan monthly and adjust without drama.",
		"Invest in relationships that have proven themselves.",
		"Close the year by finishing, not by starting.",
	},
	"gentle": {
		"Begin slowly and let the year find its rhythm.",
		"Protect your rest while work picks up.",
		"Let go of one obligation that no longer fits.",
		"Reflect before you plan the next year.",
	},
}

func clarityBand(f *models.PalmFeatures) string {
	avg := (f.Lines.Life.Clarity + f.Lines.Head.Clarity + f.Lines.Heart.Clarity) / 3
	switch {
	case avg >= 0.7:
		return "clear"
	case avg >= 0.4:
		return "balanced"
	default:
		return "reflective"
	}
}

func energyBand(flexibility float64) string {
	switch {
	case flexibility > 0.6:
		return "high"
	case flexibility > 0.3:
		return "steady"
	default:
		return "gentle"
	}
}

// longFate reports whether the fate line spans more than half the palm height
func longFate(f *models.PalmFeatures) bool {
	if f.Lines.Fate == nil || f.Shape.Height <= 0 {
		return false
	}
	return f.Lines.Fate.Length > 0.5*f.Shape.Height
}

func dailyGuidance(f *models.PalmFeatures, from time.Time) []models.DailyGuidance {
	pool := dailyPools[clarityBand(f)]
	colors := shapeColors[f.Shape.Type]
	if len(colors) == 0 {
		colors = shapeColors[models.HandRectangular]
	}
	offset := int(f.Lines.Life.Length)
	heart := int(f.Lines.Heart.Length)
	head := int(f.Lines.Head.Length)

	out := make([]models.DailyGuidance, 0, guidanceDays)
	for i := 0; i < guidanceDays; i++ {
		day := from.AddDate(0, 0, i)
		out = append(out, models.DailyGuidance{
			Date:         day.Format(models.BirthDateLayout),
			Guidance:     pool[(offset+i)%len(pool)],
			LuckyNumbers: luckyNumbers(heart+day.YearDay(), head+i),
			LuckyColors:  []string{colors[(offset+i)%len(colors)], colors[(offset+i+1)%len(colors)]},
		})
	}
	return out
}

// luckyNumbers returns three distinct numbers in [1,49]
func luckyNumbers(a, b int) []int {
	nums := make([]int, 0, 3)
	seen := make(map[int]bool, 3)
	candidates := []int{a, b, a + b, a*3 + 7, b*5 + 11}
	for _, c := range candidates {
		if c < 0 {
			c = -c
		}
		n := c%49 + 1
		if seen[n] {
			continue
		}
		seen[n] = true
		nums = append(nums, n)
		if len(nums) == 3 {
			break
		}
	}
	for n := 1; len(nums) < 3; n++ {
		if !seen[n] {
			seen[n] = true
			nums = append(nums, n)
		}
	}
	return nums
}

func monthlyForecast(f *models.PalmFeatures, from time.Time) []models.MonthlyForecast {
	themes := forecastThemes[longFate(f)]
	energy := energyBand(f.Shape.Flexibility)
	advice := forecastAdvice[energy]
	offset := int(f.Lines.Life.Length) % len(forecastFocus)

	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.MonthlyForecast, 0, forecastMonths)
	for i := 0; i < forecastMonths; i++ {
		month := first.AddDate(0, i, 0)
		out = append(out, models.MonthlyForecast{
			Month:  month.Format("2006-01"),
			Theme:  themes[(int(month.Month())-1)%len(themes)],
			Focus:  forecastFocus[(offset+i)%len(forecastFocus)],
			Energy: energy,
			Advice: advice[i%len(advice)],
		})
	}
	return out
}

func yearlyOutlook(f *models.PalmFeatures, from time.Time) models.YearlyOutlook {
	theme, ok := yearlyThemes[f.Shape.Type]
	if !ok {
		theme = yearlyThemes[models.HandRectangular]
	}
	energy := energyBand(f.Shape.Flexibility)
	offset := int(f.Lines.Head.Length) % len(forecastFocus)

	outlook := models.YearlyOutlook{
		Year:     from.Year(),
		Theme:    theme,
		Overview: yearlyOverviews[clarityBand(f)],
	}
	for q := 0; q < 4; q++ {
		outlook.Quarters[q] = models.QuarterOutlook{
			Quarter: q + 1,
			Theme:   quarterThemes[q],
			Focus:   forecastFocus[(offset+q)%len(forecastFocus)],
			Advice:  quarterAdvice[energy][q],
		}
	}
	return outlook
}
