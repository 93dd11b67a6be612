package perception

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"gutcheck/internal/clock"
	"gutcheck/internal/logging"
	"gutcheck/internal/ontology"
	"gutcheck/internal/types"
)

// =============================================================================
// RULE EXTRACTOR
// =============================================================================
// Deterministic text -> ParseResult. Intent comes from keyword groups walked
// in a fixed priority order; slots come from the ontology tables; confidence is
// a score built from what matched, not a probability.

// Options carries per-call context for extraction.
type Options struct {
	UserID       string
	Timezone     *time.Location
	ForcedIntent types.Intent // skip detection and parse as this intent
}

// PhraseBook resolves phrases a user taught through corrections.
type PhraseBook interface {
	LookupPhrase(ctx context.Context, userID, normalized string) (types.Intent, types.Slots, bool)
}

// Extractor is the rule-based parser.
type Extractor struct {
	clock   clock.Clock
	phrases PhraseBook
}

// NewExtractor creates an extractor. phrases may be nil.
func NewExtractor(c clock.Clock, phrases PhraseBook) *Extractor {
	if c == nil {
		c = clock.Real{}
	}
	return &Extractor{clock: c, phrases: phrases}
}

// Confidence scoring constants.
const (
	requiredSlotBonus  = 0.15
	inferredSlotBonus  = 0.08
	optionalSlotBonus  = 0.05
	maxOptionalBonus   = 0.1
	strongKeywordBonus = 0.1
	forcedIntentBonus  = 0.1
	ambiguityPenalty   = 0.15
)

var baseConfidence = map[types.Intent]float64{
	types.IntentFood:     0.45,
	types.IntentDrink:    0.45,
	types.IntentSymptom:  0.45,
	types.IntentReflux:   0.5,
	types.IntentBM:       0.55,
	types.IntentCheckin:  0.6,
	types.IntentGreeting: 0.9,
	types.IntentThanks:   0.9,
	types.IntentFarewell: 0.9,
	types.IntentChitChat: 0.9,
	types.IntentHelp:     0.85,
	types.IntentUndo:     0.85,
	types.IntentSettings: 0.8,
	types.IntentQuestion: 0.7,
	types.IntentOther:    0,
}

// Extract parses text. It never fails: unusable input yields intent other
// with confidence 0.
func (e *Extractor) Extract(ctx context.Context, text string, opts Options) types.ParseResult {
	normalized := ontology.Normalize(text)
	if normalized == "" {
		return types.Unknown(text)
	}

	if opts.ForcedIntent == "" && e.phrases != nil && opts.UserID != "" {
		if intent, slots, ok := e.phrases.LookupPhrase(ctx, opts.UserID, normalized); ok {
			logging.PerceptionDebug("learned phrase hit: user=%s intent=%s", opts.UserID, intent)
			p := types.ParseResult{
				Intent:     intent,
				Slots:      slots.Clone(),
				Confidence: 1.0,
				Source:     types.SourceLearned,
				Text:       text,
			}
			p.Recompute()
			return p
		}
	}

	tokens := ontology.Tokenize(text)
	question := strings.HasSuffix(strings.TrimSpace(text), "?")

	var p types.ParseResult
	if opts.ForcedIntent != "" {
		p = e.parseClause(tokens, question, opts)
	} else {
		p = e.parseTokens(tokens, question, opts)
	}
	p.Text = text
	logging.PerceptionDebug("extracted %s conf=%.2f missing=%v actions=%d", p.Summary(), p.Confidence, p.Missing, len(p.MultiActions))
	return p
}

// parseTokens splits multi-action utterances and parses each clause.
func (e *Extractor) parseTokens(tokens []string, question bool, opts Options) types.ParseResult {
	left, right, ok := splitActions(tokens)
	if !ok {
		return e.parseClause(tokens, question, opts)
	}

	primary := e.parseTokens(left, false, opts)
	secondary := e.parseTokens(right, false, opts)

	if sameSymptom(primary, secondary) {
		mergeSlots(&primary, secondary)
		primary.MultiActions = append(primary.MultiActions, secondary.MultiActions...)
		return primary
	}

	actions := append([]types.ParseResult(nil), primary.MultiActions...)
	tail := secondary.MultiActions
	secondary.MultiActions = nil
	actions = append(actions, secondary)
	actions = append(actions, tail...)
	primary.MultiActions = actions
	return primary
}

// sameSymptom reports two clauses naming the same symptom ("bloated 5 and
// gassy 5"). They describe one event.
func sameSymptom(a, b types.ParseResult) bool {
	if !a.Intent.IsSymptomLike() || a.Intent != b.Intent {
		return false
	}
	kind := a.Slots.String(types.SlotSymptomType)
	return kind != "" && kind == b.Slots.String(types.SlotSymptomType)
}

// mergeSlots fills the slots dst lacks from src. dst keeps its severity.
func mergeSlots(dst *types.ParseResult, src types.ParseResult) {
	for k, v := range src.Slots {
		if !dst.Slots.Has(k) {
			dst.Slots.Set(k, v)
		}
	}
	dst.Confidence = math.Max(dst.Confidence, src.Confidence)
	dst.Recompute()
}

// splitActions finds the rightmost coordinating conjunction whose two sides
// both carry a loggable event.
func splitActions(tokens []string) (left, right []string, ok bool) {
	for i := len(tokens) - 2; i >= 1; i-- {
		if !isConjunction(tokens[i]) {
			continue
		}
		l := trimSeparators(tokens[:i])
		r := trimSeparators(tokens[i+1:])
		if len(l) == 0 || len(r) == 0 {
			continue
		}
		if isActionIntent(detectIntent(l, false).intent) && isActionIntent(detectIntent(r, false).intent) {
			return l, r, true
		}
	}
	return nil, nil, false
}

func isConjunction(tok string) bool {
	for _, c := range ontology.Conjunctions {
		if tok == c {
			return true
		}
	}
	return false
}

func isActionIntent(i types.Intent) bool {
	switch i {
	case types.IntentFood, types.IntentDrink, types.IntentSymptom, types.IntentReflux, types.IntentBM:
		return true
	}
	return false
}

func trimSeparators(tokens []string) []string {
	for len(tokens) > 0 && isJoiner(tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && isJoiner(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func isJoiner(tok string) bool {
	return tok == "," || tok == "&" || isConjunction(tok)
}

// parseClause parses a single clause.
func (e *Extractor) parseClause(tokens []string, question bool, opts Options) types.ParseResult {
	det := detectIntent(tokens, question)
	forced := opts.ForcedIntent != ""
	if forced {
		det = detection{intent: opts.ForcedIntent}
	}

	p := types.NewParseResult(strings.Join(tokens, " "), det.intent)
	if det.intent == types.IntentOther && !forced {
		return p
	}

	c := newClause(tokens)
	switch det.intent {
	case types.IntentFood, types.IntentDrink:
		consumeSmallTalk(c)
		e.extractIntake(c, p.Slots, opts)
	case types.IntentSymptom, types.IntentReflux:
		extractSymptom(c, det.intent, p.Slots)
	case types.IntentBM:
		extractBM(c, p.Slots)
	case types.IntentCheckin:
		extractMood(c, p.Slots)
	}
	p.Recompute()

	p.Confidence = score(p, c, det, forced)
	return p
}

// =============================================================================
// INTENT DETECTION
// =============================================================================

type detection struct {
	intent    types.Intent
	strong    bool // decided by a decisive keyword
	competing int  // other loggable groups that also matched
}

// detectIntent walks the keyword groups in priority order: bowel movement,
// reflux, drink verbs, beverage heads, food verbs, weak intake, symptoms,
// check-ins, conversation, commands, questions. First match wins.
func detectIntent(tokens []string, question bool) detection {
	if len(tokens) == 0 || allNumeric(tokens) {
		return detection{intent: types.IntentOther}
	}

	leadsQuestion := ontology.ContainsAny(tokens[:1], ontology.QuestionLeads)
	if question && leadsQuestion {
		switch {
		case ontology.ContainsAny(tokens, ontology.HelpTerms):
			return detection{intent: types.IntentHelp, strong: true}
		case ontology.ContainsAny(tokens, ontology.ChitChatTerms) && len(tokens) <= 5:
			return detection{intent: types.IntentChitChat, strong: true}
		}
		return detection{intent: types.IntentQuestion}
	}

	hasBM := ontology.ContainsAny(tokens, ontology.BMTerms)
	hasReflux := ontology.ContainsAny(tokens, ontology.RefluxTerms)
	hasDrinkVerb := ontology.ContainsAny(tokens, ontology.DrinkVerbs)
	hasFoodVerb := ontology.ContainsAny(tokens, ontology.FoodVerbs)

	groups := 0
	for _, hit := range []bool{hasBM, hasReflux, hasDrinkVerb, hasFoodVerb} {
		if hit {
			groups++
		}
	}
	competing := groups - 1

	switch {
	case hasBM:
		return detection{intent: types.IntentBM, strong: true, competing: competing}
	case hasReflux:
		return detection{intent: types.IntentReflux, strong: true, competing: competing}
	case hasDrinkVerb:
		return detection{intent: types.IntentDrink, strong: true, competing: competing}
	}

	specific, general := symptomSignals(tokens)
	negative := ontology.ContainsAny(tokens, ontology.NegativeFeelings) || negatedMood(tokens)
	positive := !negative && ontology.ContainsAny(tokens, ontology.PositiveFeelings)
	symptomatic := specific || general || negative

	if !symptomatic && beverageHead(tokens) {
		return detection{intent: types.IntentDrink}
	}
	if hasFoodVerb {
		return detection{intent: types.IntentFood, strong: true, competing: competing}
	}
	if !symptomatic && !positive && hasContent(tokens) {
		if ontology.ContainsAny(tokens, ontology.WeakIntakeVerbs) {
			return detection{intent: types.IntentFood}
		}
		if mentionsMeal(tokens) && !conversational(tokens) && !ontology.ContainsAny(tokens, ontology.MoodWords) {
			return detection{intent: types.IntentFood}
		}
	}

	if symptomatic {
		return detection{intent: types.IntentSymptom, strong: specific}
	}
	if ontology.ContainsAny(tokens, ontology.BodyTerms) && !positive {
		return detection{intent: types.IntentSymptom}
	}
	if positive {
		return detection{intent: types.IntentCheckin, strong: true}
	}
	if bareMood(tokens) {
		return detection{intent: types.IntentCheckin}
	}

	n := len(tokens)
	if m, ok := ontology.FindFirst(tokens, ontology.GreetingTerms); ok && (m.Start == 0 || n <= 4) {
		return detection{intent: types.IntentGreeting, strong: true}
	}
	if ontology.ContainsAny(tokens, ontology.ThanksTerms) {
		return detection{intent: types.IntentThanks, strong: true}
	}
	if ontology.ContainsAny(tokens, ontology.FarewellTerms) && n <= 6 {
		return detection{intent: types.IntentFarewell, strong: true}
	}
	if m, ok := ontology.FindFirst(tokens, ontology.ChitChatTerms); ok && (n <= 4 || len(m.Phrase) > 1) {
		return detection{intent: types.IntentChitChat, strong: true}
	}

	switch {
	case ontology.ContainsAny(tokens, ontology.HelpTerms):
		return detection{intent: types.IntentHelp, strong: true}
	case ontology.ContainsAny(tokens, ontology.UndoTerms):
		return detection{intent: types.IntentUndo, strong: true}
	case ontology.ContainsAny(tokens, ontology.SettingsTerms):
		return detection{intent: types.IntentSettings, strong: true}
	case question || leadsQuestion:
		return detection{intent: types.IntentQuestion}
	}
	return detection{intent: types.IntentOther}
}

func allNumeric(tokens []string) bool {
	for _, t := range tokens {
		if !ontology.IsNumeric(t) && t != "," {
			return false
		}
	}
	return true
}

// symptomSignals reports whether a specific (nausea, bloat, pain) or general
// symptom term occurs. Reflux terms are handled before this point.
func symptomSignals(tokens []string) (specific, general bool) {
	for _, g := range ontology.SymptomGroups {
		if g.Name == ontology.SymptomReflux {
			continue
		}
		if ontology.ContainsAny(tokens, g.Terms) {
			if g.Name == ontology.SymptomGeneral {
				general = true
			} else {
				specific = true
			}
		}
	}
	return specific, general
}

// negatedMood reports a mood word preceded by a negator within two tokens.
func negatedMood(tokens []string) bool {
	for i, t := range tokens {
		if !isMoodWord(t) {
			continue
		}
		for j := i - 1; j >= 0 && j >= i-2; j-- {
			if ontology.ContainsAny(tokens[j:j+1], ontology.Negators) {
				return true
			}
		}
	}
	return false
}

func isMoodWord(tok string) bool {
	return ontology.ContainsAny([]string{tok}, ontology.MoodWords)
}

func bareMood(tokens []string) bool {
	joined := strings.Join(tokens, " ")
	for _, m := range ontology.BareMoods {
		if joined == m {
			return true
		}
	}
	return false
}

func conversational(tokens []string) bool {
	return ontology.ContainsAny(tokens, ontology.GreetingTerms) ||
		ontology.ContainsAny(tokens, ontology.ThanksTerms) ||
		ontology.ContainsAny(tokens, ontology.FarewellTerms)
}

func mentionsMeal(tokens []string) bool {
	for _, g := range ontology.MealGroups {
		if ontology.ContainsAny(tokens, g.Terms) {
			return true
		}
	}
	return false
}

// hasContent reports whether any token could name an item.
func hasContent(tokens []string) bool {
	for _, t := range tokens {
		if isItemToken(t) {
			return true
		}
	}
	return false
}

func isItemToken(t string) bool {
	if t == "," || t == "&" || ontology.IsNumeric(t) || ontology.IsStopWord(t) {
		return false
	}
	return !strings.HasPrefix(t, "/")
}

// beverageHead reports whether the first item segment names a beverage.
func beverageHead(tokens []string) bool {
	var head []string
	for _, t := range tokens {
		if isSideSeparator(t) && len(head) > 0 {
			break
		}
		head = append(head, t)
	}
	return ontology.ContainsAny(head, ontology.Beverages)
}

func isSideSeparator(tok string) bool {
	for _, s := range ontology.SideSeparators {
		if tok == s {
			return true
		}
	}
	return false
}

// =============================================================================
// SLOT EXTRACTION
// =============================================================================

// clause tracks which tokens were consumed by earlier slot matches.
type clause struct {
	tokens    []string
	used      []bool
	inferred  map[string]bool
	ambiguity int
}

func newClause(tokens []string) *clause {
	return &clause{
		tokens:   tokens,
		used:     make([]bool, len(tokens)),
		inferred: make(map[string]bool),
	}
}

func (c *clause) consume(start, end int) {
	for i := start; i < end && i < len(c.used); i++ {
		c.used[i] = true
	}
}

func (c *clause) free(start, end int) bool {
	for i := start; i < end; i++ {
		if c.used[i] {
			return false
		}
	}
	return true
}

// findFree returns the earliest match of any phrase that does not overlap a
// consumed token.
func (c *clause) findFree(phrases []ontology.Phrase) (ontology.Match, bool) {
	best := ontology.Match{Start: -1}
	for _, p := range phrases {
		for i := 0; i+len(p) <= len(c.tokens); i++ {
			if !p.MatchAt(c.tokens, i) || !c.free(i, i+len(p)) {
				continue
			}
			if best.Start < 0 || i < best.Start || (i == best.Start && len(p) > len(best.Phrase)) {
				best = ontology.Match{Phrase: p, Start: i, End: i + len(p)}
			}
			break
		}
	}
	return best, best.Start >= 0
}

// extractIntake fills item, sides, meal_time, portion and brand.
func (e *Extractor) extractIntake(c *clause, slots types.Slots, opts Options) {
	// meal_time: named, else inferred from the local clock
	meal := ""
	for _, g := range ontology.MealGroups {
		if m, ok := c.findFree(g.Terms); ok {
			if meal == "" {
				meal = g.Name
			} else if meal != g.Name {
				c.ambiguity++
			}
			c.consume(m.Start, m.End)
		}
	}
	if meal == "" {
		meal = ontology.MealForTime(clock.In(e.clock, opts.Timezone))
		c.inferred[types.SlotMealTime] = true
	}
	slots.Set(types.SlotMealTime, meal)

	// brand: "from starbucks" / "at chipotle" is not part of the item
	if m, ok := c.findFree(ontology.BrandPhrases); ok {
		slots.Set(types.SlotBrand, m.Phrase.String())
		if m.Start > 0 && (c.tokens[m.Start-1] == "from" || c.tokens[m.Start-1] == "at") {
			c.consume(m.Start-1, m.End)
		}
	}

	if raw, start, end, ok := findPortion(c); ok {
		slots.Set(types.SlotPortion, raw)
		c.consume(start, end)
	}

	segments := itemSegments(c)
	if len(segments) > 0 {
		slots.Set(types.SlotItem, segments[0])
		if len(segments) > 1 {
			slots.Set(types.SlotSides, segments[1:])
		}
	}
}

// consumeSmallTalk marks greetings that open the clause and thanks anywhere in
// it, so "hello, I had pizza" names only pizza.
func consumeSmallTalk(c *clause) {
	for i := 0; i < len(c.tokens); {
		if c.tokens[i] == "," {
			i++
			continue
		}
		n := longestAt(c.tokens, i, ontology.GreetingTerms, ontology.ThanksTerms)
		if n == 0 {
			break
		}
		c.consume(i, i+n)
		i += n
	}
	for {
		m, ok := c.findFree(ontology.ThanksTerms)
		if !ok {
			return
		}
		c.consume(m.Start, m.End)
	}
}

func longestAt(tokens []string, i int, lexicons ...[]ontology.Phrase) int {
	n := 0
	for _, lex := range lexicons {
		for _, p := range lex {
			if len(p) > n && p.MatchAt(tokens, i) {
				n = len(p)
			}
		}
	}
	return n
}

// findPortion locates "<quantity> <unit> [of]" or a bare leading count.
func findPortion(c *clause) (raw string, start, end int, ok bool) {
	for i := 0; i < len(c.tokens); i++ {
		if c.used[i] {
			continue
		}
		qty := quantityLen(c.tokens, i)
		if qty == 0 {
			continue
		}
		j := i + qty
		if j < len(c.tokens) && !c.used[j] && c.tokens[j] != "" && c.tokens[j] != "count" {
			if _, isUnit := ontology.CanonicalUnit(c.tokens[j]); isUnit {
				end := j + 1
				if end < len(c.tokens) && c.tokens[end] == "of" {
					end++
				}
				return strings.Join(c.tokens[i:j+1], " "), i, end, true
			}
		}
		if qty == 1 && ontology.IsNumeric(c.tokens[i]) && j < len(c.tokens) && isItemToken(c.tokens[j]) {
			return c.tokens[i], i, i + 1, true
		}
	}
	return "", 0, 0, false
}

// quantityLen returns how many tokens at i form a quantity.
func quantityLen(tokens []string, i int) int {
	if ontology.IsNumeric(tokens[i]) {
		return 1
	}
	if i+1 < len(tokens) {
		if _, ok := ontology.NumberWords[tokens[i]+" "+tokens[i+1]]; ok {
			return 2
		}
	}
	if _, ok := ontology.NumberWords[tokens[i]]; ok {
		return 1
	}
	return 0
}

// itemSegments splits the unconsumed tokens on side separators and strips
// stop-words from each segment.
func itemSegments(c *clause) []string {
	var segments []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			segments = append(segments, strings.Join(cur, " "))
			cur = nil
		}
	}
	for i, t := range c.tokens {
		if c.used[i] {
			continue
		}
		if isSideSeparator(t) {
			flush()
			continue
		}
		if isItemToken(t) {
			cur = append(cur, t)
		}
	}
	flush()
	return segments
}

// extractSymptom fills symptom_type and severity.
func extractSymptom(c *clause, intent types.Intent, slots types.Slots) {
	if intent == types.IntentReflux {
		slots.Set(types.SlotSymptomType, ontology.SymptomReflux)
		if m, ok := c.findFree(ontology.RefluxTerms); ok {
			c.consume(m.Start, m.End)
		}
	} else {
		found := ""
		for _, g := range ontology.SymptomGroups {
			m, ok := c.findFree(g.Terms)
			if !ok {
				continue
			}
			c.consume(m.Start, m.End)
			if found == "" {
				found = g.Name
			} else {
				c.ambiguity++
			}
		}
		if found == "" && (ontology.ContainsAny(c.tokens, ontology.NegativeFeelings) || negatedMood(c.tokens)) {
			found = ontology.SymptomGeneral
		}
		slots.Set(types.SlotSymptomType, found)
	}

	if sev, ok := explicitSeverity(c.tokens); ok {
		slots.Set(types.SlotSeverity, sev)
	} else if sev, ok := adjectiveSeverity(c); ok {
		slots.Set(types.SlotSeverity, sev)
	}
}

var timeUnits = map[string]bool{
	"hour": true, "hours": true, "hr": true, "hrs": true, "h": true,
	"minute": true, "minutes": true, "min": true, "mins": true,
	"am": true, "pm": true, "day": true, "days": true, "times": true, "x": true,
}

// explicitSeverity reads a 1-10 number, skipping "/10" and "out of 10"
// denominators and clock or duration numbers.
func explicitSeverity(tokens []string) (int, bool) {
	for i, t := range tokens {
		n, ok := roundedNumber(t)
		if !ok || n < ontology.MinSeverity || n > ontology.MaxSeverity {
			continue
		}
		if i+1 < len(tokens) && timeUnits[tokens[i+1]] {
			continue
		}
		if n == 10 && i > 0 && ontology.IsNumeric(tokens[i-1]) {
			continue
		}
		if n == 10 && i > 1 && tokens[i-1] == "of" && tokens[i-2] == "out" {
			continue
		}
		return n, true
	}
	return 0, false
}

func roundedNumber(t string) (int, bool) {
	if !ontology.IsNumeric(t) {
		return 0, false
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(f)), true
}

// adjectiveSeverity maps the longest matching severity adjective.
func adjectiveSeverity(c *clause) (int, bool) {
	for _, st := range ontology.SeverityAdjectives {
		if st.Phrase.IndexIn(c.tokens) >= 0 {
			return st.Value, true
		}
	}
	return 0, false
}

// extractBM fills bristol and description.
func extractBM(c *clause, slots types.Slots) {
	// Numbers inside a BM term ("number 2") are not Bristol values.
	for _, p := range ontology.BMTerms {
		for i := 0; i+len(p) <= len(c.tokens); i++ {
			if p.MatchAt(c.tokens, i) && len(p) > 1 {
				c.consume(i, i+len(p))
			}
		}
	}

	implied := 0
	for _, g := range ontology.BMDescriptors {
		for _, st := range g.Terms {
			idx := st.Phrase.IndexIn(c.tokens)
			if idx < 0 {
				continue
			}
			if !slots.Has(types.SlotDescription) {
				slots.Set(types.SlotDescription, g.Name)
				implied = st.Value
			} else if slots.String(types.SlotDescription) != g.Name {
				c.ambiguity++
			}
			break
		}
	}

	if n, ok := explicitBristol(c); ok {
		slots.Set(types.SlotBristol, n)
	} else if implied > 0 {
		slots.Set(types.SlotBristol, implied)
		c.inferred[types.SlotBristol] = true
	}
}

// explicitBristol reads "bristol 4", "type 4", "bristol type #4" or a bare
// 1-7 number.
func explicitBristol(c *clause) (int, bool) {
	for i, t := range c.tokens {
		if t != "bristol" && t != "type" && t != "scale" {
			continue
		}
		for j := i + 1; j < len(c.tokens) && j <= i+2; j++ {
			if n, ok := roundedNumber(strings.TrimPrefix(c.tokens[j], "#")); ok {
				if n >= ontology.BristolMin && n <= ontology.BristolMax {
					return n, true
				}
				break
			}
		}
	}
	for i, t := range c.tokens {
		if c.used[i] {
			continue
		}
		n, ok := roundedNumber(t)
		if !ok || n < ontology.BristolMin || n > ontology.BristolMax {
			continue
		}
		if i+1 < len(c.tokens) && timeUnits[c.tokens[i+1]] {
			continue
		}
		return n, true
	}
	return 0, false
}

// extractMood fills mood for check-ins.
func extractMood(c *clause, slots types.Slots) {
	for _, t := range c.tokens {
		if !isMoodWord(t) {
			continue
		}
		if t == "ok" {
			t = "okay"
		}
		slots.Set(types.SlotMood, t)
		return
	}
}

// =============================================================================
// CONFIDENCE
// =============================================================================

// score derives the deterministic confidence: a base per intent, a bonus per
// filled required slot (smaller when inferred), a capped bonus for optional
// slots, a bonus for a decisive keyword or an explicit intent, minus a penalty
// for every competing group.
func score(p types.ParseResult, c *clause, det detection, forced bool) float64 {
	if p.Intent == types.IntentOther && !forced {
		return 0
	}
	s := baseConfidence[p.Intent]

	required := types.RequiredSlots(p.Intent)
	for _, slot := range required {
		if !p.Slots.Has(slot) {
			continue
		}
		if c.inferred[slot] {
			s += inferredSlotBonus
		} else {
			s += requiredSlotBonus
		}
	}

	optional := 0.0
	for key := range p.Slots {
		if !contains(required, key) {
			optional += optionalSlotBonus
		}
	}
	s += math.Min(optional, maxOptionalBonus)

	if det.strong {
		s += strongKeywordBonus
	}
	if forced {
		s += forcedIntentBonus
	}
	s -= ambiguityPenalty * float64(det.competing+c.ambiguity)

	// Round away float noise so thresholds compare cleanly.
	return types.Clamp01(math.Round(s*1000) / 1000)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
