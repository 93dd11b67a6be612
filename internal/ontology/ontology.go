// Package ontology holds the static vocabulary of the NLU pipeline: intent
// keyword groups, symptom and bowel-movement synonym groups, meal time
// windows, the severity adjective table, brand and unit tables and the item
// stop-list. Everything here is pure data.
package ontology

import (
	"sort"
	"time"
)

// =============================================================================
// INTENT KEYWORDS
// =============================================================================
// Intent detection walks these groups in a fixed priority order (see the
// extractor). Strong terms are decisive on their own; weak terms only count
// when nothing more specific competes with them.

// BMTerms signal a bowel movement entry.
var BMTerms = Compile(
	"bm", "bms", "bowel movement", "bowel movements", "poop", "pooped", "pooping",
	"poo", "pood", "stool", "stools", "diarrhea", "diarrhoea", "the runs",
	"constipated", "constipation", "bristol", "number two", "number 2", "#2",
	"took a dump",
)

// RefluxTerms signal a reflux entry.
var RefluxTerms = Compile(
	"heartburn", "heart burn", "reflux", "acid reflux", "gerd", "acid",
	"burning chest", "chest burning", "chest burn", "regurgitation",
	"regurgitated", "regurgitating", "sour burps", "indigestion",
)

// DrinkVerbs are decisive drink actions.
var DrinkVerbs = Compile(
	"drank", "drink", "drinking", "drinks", "sipped", "sipping", "sip",
	"chugged", "gulped", "downed",
)

// Beverages are item heads that make an ambiguous "had X" a drink.
var Beverages = Compile(
	"coffee", "latte", "espresso", "cappuccino", "americano", "cold brew", "mocha",
	"tea", "green tea", "chai", "matcha", "water", "sparkling water", "seltzer",
	"soda", "coke", "diet coke", "pepsi", "sprite", "juice", "orange juice",
	"apple juice", "milk", "oat milk", "almond milk", "smoothie", "beer", "wine",
	"red wine", "white wine", "cocktail", "margarita", "kombucha", "lemonade",
	"energy drink", "red bull", "monster", "hot chocolate", "milkshake", "shake",
	"la croix", "lacroix", "gatorade", "protein shake", "iced coffee", "iced tea",
	"whiskey", "vodka", "tequila", "cider",
)

// FoodVerbs are decisive eating actions.
var FoodVerbs = Compile(
	"ate", "eat", "eating", "eaten", "snacked", "snacking on", "munched",
	"munching", "devoured", "nibbled", "grabbed",
)

// WeakIntakeVerbs introduce either food or drink and lose to symptom terms
// ("had a headache").
var WeakIntakeVerbs = Compile("had", "have", "having", "finished", "got", "made")

// =============================================================================
// SYMPTOMS
// =============================================================================

// SymptomGroup is a symptom type and the terms that name it.
type SymptomGroup struct {
	Name  string
	Terms []Phrase
}

// Symptom type names.
const (
	SymptomReflux  = "reflux"
	SymptomPain    = "pain"
	SymptomBloat   = "bloat"
	SymptomNausea  = "nausea"
	SymptomGeneral = "general"
)

// SymptomGroups is ordered by precedence: when several groups match, the first
// one becomes the symptom type and the rest count as ambiguity.
var SymptomGroups = []SymptomGroup{
	{Name: SymptomReflux, Terms: RefluxTerms},
	{Name: SymptomNausea, Terms: Compile(
		"nausea", "nauseous", "nauseated", "queasy", "sick to my stomach",
		"vomit", "vomited", "vomiting", "threw up", "throw up", "throwing up",
		"puke", "puked", "gagging",
	)},
	{Name: SymptomBloat, Terms: Compile(
		"bloated", "bloating", "bloat", "gassy", "gas", "distended", "farting",
		"flatulence", "swollen", "puffy",
	)},
	{Name: SymptomPain, Terms: Compile(
		"pain", "painful", "hurts", "hurt", "hurting", "ache", "aches", "aching",
		"achy", "cramp", "cramps", "cramping", "sore", "stabbing", "stomachache",
		"stomach ache", "tummy ache", "bellyache", "belly ache", "sharp",
	)},
	{Name: SymptomGeneral, Terms: Compile(
		"tired", "fatigue", "fatigued", "exhausted", "dizzy", "headache",
		"unwell", "sick", "ill", "lousy", "crappy", "rough", "off", "gross",
		"icky", "yucky",
	)},
}

// BodyTerms name a body region without naming a symptom.
var BodyTerms = Compile("stomach", "tummy", "belly", "gut", "abdomen", "chest", "throat", "bowels")

// NegativeFeelings are hedged or negative wellbeing phrases that mean a
// general symptom.
var NegativeFeelings = Compile(
	"feel bad", "feeling bad", "felt bad", "feel awful", "feeling awful",
	"feel terrible", "feeling terrible", "feel horrible", "feeling horrible",
	"not feeling well", "not feeling good", "not feeling great", "don't feel well",
	"don't feel good", "dont feel good", "not great", "not good", "not so good",
	"not well", "feel like crap", "feel like garbage",
)

// Negators flip a following positive mood.
var Negators = Compile("not", "don't", "dont", "didn't", "didnt", "isn't", "isnt", "no", "never", "hardly")

// =============================================================================
// SEVERITY
// =============================================================================

// ScaledTerm maps a phrase to a number on a fixed scale.
type ScaledTerm struct {
	Phrase Phrase
	Value  int
}

func scaled(m map[string]int) []ScaledTerm {
	out := make([]ScaledTerm, 0, len(m))
	for term, v := range m {
		out = append(out, ScaledTerm{Phrase: Compile(term)[0], Value: v})
	}
	// Longest phrases first so "really bad" wins over "bad".
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Phrase) != len(out[j].Phrase) {
			return len(out[i].Phrase) > len(out[j].Phrase)
		}
		return out[i].Phrase.String() < out[j].Phrase.String()
	})
	return out
}

// SeverityAdjectives maps adjectives to the 1-10 severity scale.
var SeverityAdjectives = scaled(map[string]int{
	"slight":       1,
	"slightly":     1,
	"barely":       1,
	"a tiny bit":   1,
	"mild":         2,
	"mildly":       2,
	"minor":        2,
	"a little":     2,
	"a bit":        2,
	"little":       2,
	"kinda":        3,
	"some":         3,
	"noticeable":   4,
	"moderate":     5,
	"medium":       5,
	"pretty":       5,
	"strong":       6,
	"bad":          6,
	"pretty bad":   6,
	"really":       7,
	"really bad":   7,
	"very bad":     7,
	"very":         7,
	"severe":       7,
	"intense":      7,
	"terrible":     8,
	"awful":        8,
	"horrible":     8,
	"excruciating": 9,
	"unbearable":   9,
	"worst":        10,
})

// MinSeverity and MaxSeverity bound explicit severity numbers.
const (
	MinSeverity = 1
	MaxSeverity = 10
)

// =============================================================================
// BOWEL MOVEMENTS
// =============================================================================

// BristolMin and BristolMax bound the Bristol stool scale.
const (
	BristolMin = 1
	BristolMax = 7
)

// DescriptorGroup is a loose/hard/normal family of bowel movement words. Each
// term carries the Bristol value it implies.
type DescriptorGroup struct {
	Name  string
	Terms []ScaledTerm
}

// BMDescriptors are checked in order.
var BMDescriptors = []DescriptorGroup{
	{Name: "loose", Terms: scaled(map[string]int{
		"loose": 6, "runny": 6, "mushy": 6, "soft": 5, "watery": 7, "liquid": 7,
		"diarrhea": 7, "diarrhoea": 7, "the runs": 7,
	})},
	{Name: "hard", Terms: scaled(map[string]int{
		"hard": 2, "lumpy": 2, "straining": 2, "strained": 2, "constipated": 2,
		"constipation": 2, "pellets": 1, "pebbles": 1, "rabbit": 1,
	})},
	{Name: "normal", Terms: scaled(map[string]int{
		"normal": 4, "regular": 4, "smooth": 4, "healthy": 4, "easy": 4, "perfect": 4,
	})},
}

// =============================================================================
// MEAL TIMES
// =============================================================================

// Meal names.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// MealGroups map synonyms to a canonical meal name.
var MealGroups = []SymptomGroup{
	{Name: MealBreakfast, Terms: Compile("breakfast", "brekkie", "brekky", "this morning")},
	{Name: MealLunch, Terms: Compile("lunch", "lunchtime", "midday", "noon")},
	{Name: MealDinner, Terms: Compile("dinner", "dinnertime", "supper", "tonight", "this evening")},
	{Name: MealSnack, Terms: Compile("snack", "snacks", "late night snack", "dessert", "midnight snack")},
}

// MealWindow is a [Start, End) window in minutes after local midnight.
type MealWindow struct {
	Name  string
	Start int
	End   int
}

// MealWindows infer the meal from local time when the text names none.
var MealWindows = []MealWindow{
	{Name: MealBreakfast, Start: 5 * 60, End: 11 * 60},
	{Name: MealLunch, Start: 11 * 60, End: 14*60 + 30},
	{Name: MealDinner, Start: 17 * 60, End: 21 * 60},
}

// MealForTime returns the meal whose window contains t, or snack.
func MealForTime(t time.Time) string {
	minute := t.Hour()*60 + t.Minute()
	for _, w := range MealWindows {
		if minute >= w.Start && minute < w.End {
			return w.Name
		}
	}
	return MealSnack
}

// IsMealName reports whether s is a canonical meal name.
func IsMealName(s string) bool {
	switch s {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
		return true
	}
	return false
}

// =============================================================================
// CHECK-INS AND CONVERSATION
// =============================================================================

// MoodWords are positive wellbeing words.
var MoodWords = Compile("great", "good", "fine", "better", "amazing", "well", "alright", "normal", "okay", "ok")

// PositiveFeelings are check-in phrases.
var PositiveFeelings = Compile(
	"feel good", "feeling good", "felt good", "feel great", "feeling great",
	"feel fine", "feeling fine", "feel better", "feeling better", "feel okay",
	"feeling okay", "feel ok", "feeling ok", "feel normal", "feeling normal",
	"doing well", "doing good", "doing great", "doing fine", "doing okay",
	"all good", "no symptoms", "symptom free", "no issues", "no problems",
	"nothing to report", "better today",
)

// BareMoods are whole-message check-ins.
var BareMoods = []string{"great", "good", "fine", "better", "alright", "normal", "all good"}

// GreetingTerms, ThanksTerms, FarewellTerms and ChitChatTerms are the
// conversational lexicons.
var (
	GreetingTerms = Compile(
		"hi", "hello", "hey", "heya", "hiya", "yo", "howdy", "good morning",
		"good afternoon", "good evening", "morning", "gm", "sup",
	)
	ThanksTerms = Compile(
		"thanks", "thank you", "thank u", "thx", "ty", "tysm", "cheers",
		"appreciate it", "much appreciated",
	)
	FarewellTerms = Compile(
		"bye", "goodbye", "good bye", "good night", "goodnight", "gn",
		"see you", "see ya", "later", "ttyl", "cya", "night",
	)
	ChitChatTerms = Compile(
		"how are you", "how's it going", "hows it going", "what's up", "whats up",
		"lol", "haha", "lmao", "cool", "nice", "awesome", "ok", "okay", "k",
		"sure", "yep", "yeah", "nope", "hmm", "wow",
	)
)

// HelpTerms, UndoTerms and SettingsTerms are command-like phrases.
var (
	HelpTerms = Compile(
		"help", "/help", "what can you do", "how do i use", "how does this work",
		"commands", "instructions",
	)
	UndoTerms = Compile(
		"undo", "/undo", "delete that", "delete last", "remove that",
		"remove last", "scratch that", "take that back", "undo last",
	)
	SettingsTerms = Compile(
		"settings", "/settings", "timezone", "time zone", "set reminder",
		"reminders", "notifications", "preferences",
	)
)

// QuestionLeads open a question.
var QuestionLeads = Compile(
	"what", "why", "how", "when", "where", "which", "who", "is", "are", "can",
	"could", "should", "does", "do", "did", "will", "would",
)

// VagueTerms are hedges that say something happened without saying what.
var VagueTerms = Compile(
	"not feeling great", "not great", "not so good", "meh", "something",
	"off", "weird", "bathroom", "went to the bathroom", "ugh", "blah", "idk",
	"kinda", "sort of", "not sure",
)

// Conjunctions split multi-action utterances.
var Conjunctions = []string{"and", "but", "then", "also", "plus", ";"}

// SideSeparators introduce a sides clause after the head item.
var SideSeparators = []string{",", "&", "and", "with", "plus"}

// =============================================================================
// ITEM STOP-LIST
// =============================================================================

// StopWords are dropped when extracting a food or drink item.
var StopWords = toSet(
	// articles and quantifiers
	"a", "an", "the", "some", "any", "more", "another", "bit", "of",
	// pronouns
	"i", "i'm", "im", "i've", "ive", "me", "my", "mine", "we", "our", "it", "it's",
	"this", "that", "these", "those", "you", "just", "also",
	// intake verbs
	"had", "have", "has", "having", "ate", "eat", "eating", "eaten", "drank",
	"drink", "drinking", "drinks", "sipped", "sipping", "sip", "snacked",
	"snacking", "grabbed", "got", "made", "finished", "devoured", "munched",
	"munching", "nibbled", "chugged", "gulped", "downed", "was", "were", "is",
	// prepositions
	"for", "at", "on", "in", "to", "from", "as", "around", "about", "during",
	"after", "before", "by", "like",
	// meal and time words
	"breakfast", "brekkie", "brekky", "lunch", "lunchtime", "dinner",
	"dinnertime", "supper", "snack", "snacks", "dessert", "morning", "tonight",
	"today", "yesterday", "evening", "noon", "midday", "earlier", "now", "ago",
	"late", "night", "midnight", "this",
	// fillers
	"really", "so", "um", "uh", "ok", "okay", "lol", "please", "too",
	"something", "stuff", "thing", "things",
)

func toSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// IsStopWord reports whether tok never forms part of an item name.
func IsStopWord(tok string) bool {
	_, ok := StopWords[tok]
	return ok
}

// =============================================================================
// BRANDS AND UNITS
// =============================================================================

// Brands maps recognized brand variants to a canonical brand token.
var Brands = map[string]string{
	"starbucks":     "starbucks",
	"sbux":          "starbucks",
	"starbs":        "starbucks",
	"coca cola":     "coca-cola",
	"coca-cola":     "coca-cola",
	"coke":          "coca-cola",
	"diet coke":     "coca-cola",
	"pepsi":         "pepsi",
	"mcdonalds":     "mcdonalds",
	"mcdonald's":    "mcdonalds",
	"mcd's":         "mcdonalds",
	"maccas":        "mcdonalds",
	"chipotle":      "chipotle",
	"taco bell":     "taco bell",
	"dunkin":        "dunkin",
	"dunkin donuts": "dunkin",
	"red bull":      "red bull",
	"redbull":       "red bull",
	"la croix":      "lacroix",
	"lacroix":       "lacroix",
	"chick fil a":   "chick-fil-a",
	"chick-fil-a":   "chick-fil-a",
	"chickfila":     "chick-fil-a",
	"subway":        "subway",
	"panera":        "panera",
	"kfc":           "kfc",
	"wendys":        "wendys",
	"wendy's":       "wendys",
	"dominos":       "dominos",
	"domino's":      "dominos",
	"pizza hut":     "pizza hut",
	"oatly":         "oatly",
	"chobani":       "chobani",
	"monster":       "monster",
	"gatorade":      "gatorade",
}

// BrandPhrases are the brand variants in matchable form.
var BrandPhrases = func() []Phrase {
	keys := make([]string, 0, len(Brands))
	for k := range Brands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Compile(keys...)
}()

// CanonicalBrand returns the canonical token for a brand variant.
func CanonicalBrand(s string) (string, bool) {
	if b, ok := Brands[s]; ok {
		return b, true
	}
	if b, ok := Brands[Phrase(Tokenize(s)).String()]; ok {
		return b, true
	}
	return "", false
}

// Units maps unit spellings to canonical unit names. The empty spelling is a
// bare count ("2 eggs").
var Units = map[string]string{
	"":            "count",
	"slice":       "slice",
	"slices":      "slice",
	"cup":         "cup",
	"cups":        "cup",
	"bowl":        "bowl",
	"bowls":       "bowl",
	"glass":       "glass",
	"glasses":     "glass",
	"piece":       "piece",
	"pieces":      "piece",
	"plate":       "plate",
	"plates":      "plate",
	"serving":     "serving",
	"servings":    "serving",
	"can":         "can",
	"cans":        "can",
	"bottle":      "bottle",
	"bottles":     "bottle",
	"mug":         "mug",
	"mugs":        "mug",
	"oz":          "oz",
	"ounce":       "oz",
	"ounces":      "oz",
	"ml":          "ml",
	"milliliter":  "ml",
	"milliliters": "ml",
	"g":           "g",
	"gram":        "g",
	"grams":       "g",
	"tbsp":        "tbsp",
	"tablespoon":  "tbsp",
	"tablespoons": "tbsp",
	"tsp":         "tsp",
	"teaspoon":    "tsp",
	"teaspoons":   "tsp",
	"handful":     "handful",
	"handfuls":    "handful",
	"scoop":       "scoop",
	"scoops":      "scoop",
	"pint":        "pint",
	"pints":       "pint",
	"shot":        "shot",
	"shots":       "shot",
	"bite":        "bite",
	"bites":       "bite",
	"lb":          "lb",
	"lbs":         "lb",
	"pound":       "lb",
	"pounds":      "lb",
	"count":       "count",
}

// NumberWords maps spelled-out quantities to magnitudes.
var NumberWords = map[string]float64{
	"a":         1,
	"an":        1,
	"one":       1,
	"two":       2,
	"three":     3,
	"four":      4,
	"five":      5,
	"six":       6,
	"seven":     7,
	"eight":     8,
	"nine":      9,
	"ten":       10,
	"half":      0.5,
	"half a":    0.5,
	"a half":    0.5,
	"couple":    2,
	"a couple":  2,
	"few":       3,
	"a few":     3,
	"dozen":     12,
	"a dozen":   12,
	"couple of": 2,
}

// CanonicalUnit returns the canonical name for a unit spelling.
func CanonicalUnit(s string) (string, bool) {
	u, ok := Units[s]
	return u, ok
}
