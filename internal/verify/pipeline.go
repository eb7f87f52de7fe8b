package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gserafini/reentry-map/internal/config"
	"github.com/gserafini/reentry-map/internal/cost"
	"github.com/gserafini/reentry-map/internal/event"
	"github.com/gserafini/reentry-map/internal/model"
	"github.com/gserafini/reentry-map/internal/store"
	"github.com/gserafini/reentry-map/pkg/browser"
	"github.com/gserafini/reentry-map/pkg/geocode"
)

// geocodeConfidence is the fixed confidence assigned to a provider match.
// The providers don't expose a usable accuracy metric, so a match is simply
// treated as reliable.
const geocodeConfidence = 0.9

// crossRefConfidenceFloor keeps a found-but-barely-matching source from
// scoring as a full-confidence pass: a confidence of exactly 0 reads as "no
// estimate" downstream.
const crossRefConfidenceFloor = 0.05

// Verifier runs the full check suite for one suggestion and renders a
// decision. All external dependencies are injected; any of session,
// geocoder, content, crossref, or fixer may be nil, which skips the
// corresponding checks.
type Verifier struct {
	cfg      config.VerifierConfig
	store    store.Store
	session  browser.Session
	geocoder geocode.Client
	content  *ContentExtractor
	crossref *CrossReferencer
	fixer    *URLFixer
	emitter  *event.Emitter
	costs    *cost.Calculator
}

// NewVerifier creates a Verifier with all dependencies.
func NewVerifier(
	cfg config.VerifierConfig,
	st store.Store,
	session browser.Session,
	geocoder geocode.Client,
	content *ContentExtractor,
	crossref *CrossReferencer,
	fixer *URLFixer,
	emitter *event.Emitter,
	costs *cost.Calculator,
) *Verifier {
	if cfg.ApproveThreshold == 0 {
		cfg.ApproveThreshold = DefaultThresholds().Approve
	}
	if cfg.RejectThreshold == 0 {
		cfg.RejectThreshold = DefaultThresholds().Reject
	}
	if cfg.ConflictThreshold == 0 {
		cfg.ConflictThreshold = 0.7
	}
	return &Verifier{
		cfg:      cfg,
		store:    st,
		session:  session,
		geocoder: geocoder,
		content:  content,
		crossref: crossref,
		fixer:    fixer,
		emitter:  emitter,
		costs:    costs,
	}
}

// passState accumulates everything one verification pass produces.
type passState struct {
	checks        model.VerificationChecks
	conflicts     []model.FieldConflict
	hardFails     []string
	apiCalls      int
	costs         []model.CostEntry
	siteURL       string
	changedFields []string
}

// Verify runs one pass for a suggestion and persists the outcome. A fault
// anywhere inside the checks is converted to flag_for_human with the fault
// as the reason; the trace always closes with a terminal event and a
// VerificationLog is always written.
func (v *Verifier) Verify(ctx context.Context, sug *model.Suggestion, vtype model.VerificationType) (*model.VerificationLog, error) {
	log := zap.L().With(zap.String("suggestion_id", sug.ID), zap.String("org", sug.Name))
	log.Info("verify: starting pass", zap.String("type", string(vtype)))

	started := time.Now()
	v.emitter.Started(ctx, sug.ID, vtype, v.cfg.AgentVersion)

	state, faultErr := v.runChecks(ctx, sug)

	var totalCost float64
	for i := range state.costs {
		entry := &state.costs[i]
		entry.SuggestionID = sug.ID
		totalCost += entry.CostUSD
		if err := v.store.RecordCost(ctx, entry); err != nil {
			log.Warn("verify: record cost failed", zap.Error(err))
		}
		v.emitter.Cost(ctx, sug.ID, *entry)
	}

	vlog := &model.VerificationLog{
		SuggestionID:  sug.ID,
		Type:          vtype,
		AgentVersion:  v.cfg.AgentVersion,
		Checks:        state.checks,
		Conflicts:     state.conflicts,
		FieldSnapshot: fieldSnapshot(sug),
		DurationMS:    time.Since(started).Milliseconds(),
		APICalls:      state.apiCalls,
		CostUSD:       totalCost,
	}

	// The re-verification cadence keys off which fields changed since the
	// last recorded pass, plus anything this pass itself rewrote.
	changed := state.changedFields
	if vtype != model.VerificationInitial {
		if prev := v.lastLog(ctx, sug.ID); prev != nil && len(prev.FieldSnapshot) > 0 {
			changed = append(changed, diffSnapshot(prev.FieldSnapshot, vlog.FieldSnapshot)...)
		}
	}

	if faultErr != nil {
		vlog.Decision = model.DecisionFlagForHuman
		vlog.DecisionReason = "verification fault: " + faultErr.Error()
		log.Error("verify: pass faulted", zap.Error(faultErr))
	} else {
		vlog.Score = Score(state.checks)
		vlog.Decision, vlog.DecisionReason = Decide(vlog.Score, state.hardFails,
			Thresholds{Approve: v.cfg.ApproveThreshold, Reject: v.cfg.RejectThreshold})
	}

	if err := v.store.CreateLog(ctx, vlog); err != nil {
		v.emitter.Failed(ctx, sug.ID, err)
		return nil, eris.Wrap(err, "verify: persist log")
	}

	if err := v.applyDecision(ctx, sug, vlog, changed); err != nil {
		log.Warn("verify: apply decision failed", zap.Error(err))
	}

	if faultErr != nil {
		v.emitter.Failed(ctx, sug.ID, faultErr)
	} else {
		v.emitter.Completed(ctx, sug.ID, vlog.Decision, vlog.Score, vlog.DecisionReason)
	}

	log.Info("verify: pass complete",
		zap.String("decision", string(vlog.Decision)),
		zap.Float64("score", vlog.Score),
		zap.Int64("duration_ms", vlog.DurationMS),
		zap.Float64("cost_usd", vlog.CostUSD),
	)
	return vlog, nil
}

// runChecks executes the check suite. Panics are recovered here so a single
// bad suggestion can never take down a batch.
func (v *Verifier) runChecks(ctx context.Context, sug *model.Suggestion) (state *passState, err error) {
	state = &passState{checks: make(model.VerificationChecks), siteURL: sug.Website}

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic during checks: %v", r)
		}
	}()

	// Format check first: no network involved.
	if sug.Phone != "" {
		pr := ValidatePhone(sug.Phone)
		result := model.CheckResult{Pass: pr.Valid, CheckedAt: time.Now().UTC()}
		if pr.Valid {
			result.Details = map[string]any{"formatted": pr.Formatted}
		} else {
			result.Error = "invalid phone format"
			state.hardFails = append(state.hardFails, "invalid phone number")
		}
		state.checks[model.CheckPhoneValid] = result
	}

	// Reachability (with auto-fix) and geocoding are independent; run them
	// concurrently and join before any dependent check.
	var reachResult, geoResult *model.CheckResult
	var reachCosts []model.CostEntry

	g, gCtx := errgroup.WithContext(ctx)

	if sug.Website != "" && v.session != nil {
		g.Go(guardPanic(func() error {
			res, costs, finalURL := v.checkWebsite(gCtx, sug)
			reachResult, reachCosts = &res, costs
			if finalURL != "" {
				state.siteURL = finalURL
			}
			return nil
		}))
	}

	if sug.FullAddress() != "" && v.geocoder != nil {
		g.Go(guardPanic(func() error {
			geoResult = v.checkGeocode(gCtx, sug, state)
			return nil
		}))
	}

	if werr := g.Wait(); werr != nil {
		return state, werr
	}

	// Report joined results in a fixed order so the trace reads sensibly.
	if pr, ok := state.checks[model.CheckPhoneValid]; ok {
		v.emitter.Progress(ctx, sug.ID, model.CheckPhoneValid, pr)
	}
	if reachResult != nil {
		state.checks[model.CheckURLReachable] = *reachResult
		state.apiCalls += 1 + len(reachCosts)
		state.costs = append(state.costs, reachCosts...)
		if !reachResult.Pass {
			state.hardFails = append(state.hardFails, "website unreachable")
		}
		if _, fixed := reachResult.Details["fixed_url"]; fixed {
			state.changedFields = append(state.changedFields, "website")
		}
		v.emitter.Progress(ctx, sug.ID, model.CheckURLReachable, *reachResult)
	}
	if geoResult != nil {
		state.checks[model.CheckAddressGeocodable] = *geoResult
		v.emitter.Progress(ctx, sug.ID, model.CheckAddressGeocodable, *geoResult)
	}

	// Content matching only makes sense against a site that actually loads.
	if v.content != nil && reachResult != nil && reachResult.Pass {
		state.apiCalls++
		if text := v.content.Extract(ctx, state.siteURL); text != "" {
			result := MatchContent(text, sug.Name)
			state.checks[model.CheckContentMatches] = result
			v.emitter.Progress(ctx, sug.ID, model.CheckContentMatches, result)
		}
	}

	// Cross-reference against external indices, then diff their fields
	// against what was submitted.
	if v.crossref != nil {
		refs := v.crossref.Lookup(ctx, sug)
		state.apiCalls += len(refs)
		v.recordCrossRef(ctx, sug, refs, state)
	}

	return state, nil
}

// guardPanic converts a panic inside a concurrent check into a returned error.
// The errgroup does not recover panics in its goroutines, and the caller's own
// recover only covers the calling goroutine.
func guardPanic(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = eris.Errorf("panic during checks: %v", r)
			}
		}()
		return fn()
	}
}

// lastLog returns the most recent verification log for a suggestion, nil when
// none exists or the lookup fails.
func (v *Verifier) lastLog(ctx context.Context, suggestionID string) *model.VerificationLog {
	logs, err := v.store.ListLogs(ctx, store.LogFilter{SuggestionID: suggestionID, Limit: 1})
	if err != nil || len(logs) == 0 {
		return nil
	}
	return &logs[0]
}

// checkWebsite runs the reachability check and, on failure, one auto-fix
// attempt. Returns the final check result, any LLM cost incurred, and the
// replacement URL when a fix was accepted.
func (v *Verifier) checkWebsite(ctx context.Context, sug *model.Suggestion) (model.CheckResult, []model.CostEntry, string) {
	result := CheckReachability(ctx, v.session, sug.Website)
	if result.Pass || v.fixer == nil {
		return result, nil, ""
	}

	fix := v.fixer.Fix(ctx, v.session, sug, sug.Website)

	var costs []model.CostEntry
	if fix.Usage.InputTokens > 0 || fix.Usage.OutputTokens > 0 {
		costUSD := v.costs.Claude(fix.Model, fix.Usage.InputTokens, fix.Usage.OutputTokens)
		fix.Usage.LogCost(fix.Model, "url_autofix", costUSD)
		costs = append(costs, model.CostEntry{
			Provider:     "anthropic",
			Model:        fix.Model,
			Feature:      "url_autofix",
			InputTokens:  fix.Usage.InputTokens,
			OutputTokens: fix.Usage.OutputTokens,
			CostUSD:      costUSD,
			OrgName:      sug.Name,
			URL:          sug.Website,
		})
	}

	if !fix.Fixed {
		return result, costs, ""
	}

	fixed := fix.Recheck
	if fixed.Details == nil {
		fixed.Details = map[string]any{}
	}
	fixed.Details["fixed_url"] = fix.URL
	fixed.Details["original_url"] = sug.Website
	return fixed, costs, fix.URL
}

// checkGeocode resolves the address. A provider error leaves the check
// absent (unavailable, not failed); a clean miss fails it.
func (v *Verifier) checkGeocode(ctx context.Context, sug *model.Suggestion, state *passState) *model.CheckResult {
	state.apiCalls++
	res, err := v.geocoder.Geocode(ctx, geocode.AddressInput{
		Street:  sug.Address,
		City:    sug.City,
		State:   sug.State,
		ZipCode: sug.ZipCode,
	})
	if err != nil {
		zap.L().Warn("verify: geocode unavailable", zap.String("org", sug.Name), zap.Error(err))
		return nil
	}

	result := &model.CheckResult{CheckedAt: time.Now().UTC()}
	if res.Matched {
		result.Pass = true
		result.Confidence = geocodeConfidence
		result.Details = map[string]any{
			"latitude":          res.Latitude,
			"longitude":         res.Longitude,
			"formatted_address": res.FormattedAddress,
			"source":            res.Source,
		}
	} else {
		result.Error = "address not found"
	}
	return result
}

// recordCrossRef folds external lookups into the cross_referenced and
// conflict_detection checks. No sources responding leaves both absent.
func (v *Verifier) recordCrossRef(ctx context.Context, sug *model.Suggestion, refs []CrossRefResult, state *passState) {
	if len(refs) == 0 {
		return
	}

	found := false
	var bestScore float64
	for _, ref := range refs {
		if ref.Found {
			found = true
			if ref.MatchScore > bestScore {
				bestScore = ref.MatchScore
			}
			conflicts := DetectConflicts(sug.FieldMap(), ref.Fields, ref.Source, v.cfg.ConflictThreshold)
			state.conflicts = append(state.conflicts, conflicts...)
		}
		if ref.Source == "google_places" && v.costs != nil {
			state.costs = append(state.costs, model.CostEntry{
				Provider: "google_places",
				Feature:  "cross_reference",
				CostUSD:  v.costs.PlacesQuery(),
				OrgName:  sug.Name,
			})
		}
	}

	if found && bestScore < crossRefConfidenceFloor {
		bestScore = crossRefConfidenceFloor
	}
	crossResult := model.CheckResult{
		Pass:       found,
		CheckedAt:  time.Now().UTC(),
		Confidence: bestScore,
	}
	if !found {
		crossResult.Error = "no external source matched"
	}
	state.checks[model.CheckCrossReferenced] = crossResult
	v.emitter.Progress(ctx, sug.ID, model.CheckCrossReferenced, crossResult)

	if found {
		conflictResult := model.CheckResult{
			Pass:      len(state.conflicts) == 0,
			CheckedAt: time.Now().UTC(),
		}
		if len(state.conflicts) > 0 {
			conflictResult.Details = map[string]any{"conflict_count": len(state.conflicts)}
		}
		state.checks[model.CheckConflictDetection] = conflictResult
		v.emitter.Progress(ctx, sug.ID, model.CheckConflictDetection, conflictResult)
	}
}

// applyDecision drives the suggestion's lifecycle from the decision:
// promotion on approve, status updates otherwise, plus the re-verification
// schedule keyed off the changed fields.
func (v *Verifier) applyDecision(ctx context.Context, sug *model.Suggestion, vlog *model.VerificationLog, changed []string) error {
	now := time.Now().UTC()

	switch vlog.Decision {
	case model.DecisionAutoApprove:
		if sug.ResourceID != "" {
			// Already published; a periodic pass just reaffirms it.
			vlog.ResourceID = sug.ResourceID
			break
		}
		resourceID, err := v.store.PromoteSuggestion(ctx, sug.ID)
		if err != nil {
			return eris.Wrap(err, "verify: promote suggestion")
		}
		vlog.ResourceID = resourceID
	default:
		if err := v.store.UpdateSuggestionStatus(ctx, sug.ID, model.DecisionToStatus(vlog.Decision)); err != nil {
			return eris.Wrap(err, "verify: update status")
		}
	}

	if err := v.store.SetNextVerification(ctx, sug.ID, NextVerification(now, changed)); err != nil {
		return eris.Wrap(err, "verify: schedule next pass")
	}
	return nil
}
